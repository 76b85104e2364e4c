// Copyright 2025 The Mysticetus Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lro tracks long-running operations to completion.
//
// RPCs that start asynchronous server-side work return a
// longrunningpb.Operation handle instead of a final result. Track wraps such
// a handle together with the authenticated channel it arrived on and drives
// the standard google.longrunning.Operations surface until the operation
// reaches a terminal state:
//
//	op, err := client.ExportData(ctx, req) // returns *longrunningpb.Operation
//	...
//	h := lro.Track(ch, op, lro.PollOptions{})
//	if _, err := h.Wait(ctx); err != nil {
//	    ...
//	}
//	var result exportpb.ExportDataResponse
//	err = h.Resolve(&result)
//
// The poller never interprets an operation's metadata or response payloads;
// those stay opaque Any messages until the caller unpacks them with Resolve
// or Metadata. Tracking failures surface as *lro.Error with a closed
// classification: the operation itself failed, it was cancelled, or the
// tracking deadline expired before it finished.
package lro

import (
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/longrunning/autogen/longrunningpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/mysticetus/gcpcore/channel"
)

// Full method names of the google.longrunning.Operations service.
const (
	getOperationMethod    = "/google.longrunning.Operations/GetOperation"
	waitOperationMethod   = "/google.longrunning.Operations/WaitOperation"
	cancelOperationMethod = "/google.longrunning.Operations/CancelOperation"
	deleteOperationMethod = "/google.longrunning.Operations/DeleteOperation"
)

// Defaults for PollOptions.
const (
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 30 * time.Second

	defaultMultiplier = 1.6
)

// PollOptions tune how a Handle tracks its operation.
//
// The poll cadence is independent of the channel's retry policy; the two are
// configured separately.
type PollOptions struct {
	// InitialInterval is the delay before the first poll. Default 500ms.
	InitialInterval time.Duration

	// MaxInterval caps the grown delay, and doubles as the server-side wait
	// timeout in ServerWait mode. Default 30s.
	MaxInterval time.Duration

	// Multiplier grows the delay after each poll. Default 1.6.
	Multiplier float64

	// TrackingDeadline, when positive, bounds the whole Wait loop. Expiry
	// ends tracking with KindTrackingTimedOut; the operation itself keeps
	// running server side.
	TrackingDeadline time.Duration

	// ServerWait uses WaitOperation instead of sleep-then-get, letting the
	// server hold each request until the operation finishes or the wait
	// times out.
	ServerWait bool

	// OnProgress, when set, receives every polled snapshot. It runs on the
	// polling goroutine and must not block.
	OnProgress func(*longrunningpb.Operation)
}

func (o *PollOptions) populateDefaults() {
	if o.InitialInterval <= 0 {
		o.InitialInterval = DefaultInitialInterval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = DefaultMaxInterval
	}
	if o.Multiplier <= 1 {
		o.Multiplier = defaultMultiplier
	}
}

// backoff builds the poll cadence iterator for one Wait loop.
func (o *PollOptions) backoff() *gax.Backoff {
	return &gax.Backoff{
		Initial:    o.InitialInterval,
		Max:        o.MaxInterval,
		Multiplier: o.Multiplier,
	}
}

// State is the poll state machine's position for one tracked operation.
//
// A handle starts Pending and moves exactly once into one of the terminal
// states. No polls are dispatched after a terminal transition.
type State int

const (
	// Pending: the operation has not finished.
	Pending State = iota + 1

	// Succeeded: the operation finished with a response.
	Succeeded

	// Failed: the operation finished with an error, a permanent channel
	// failure stopped tracking, or the tracking deadline expired.
	Failed

	// Cancelled: cancellation was requested and committed locally.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown state %d", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// Handle tracks one long-running operation.
//
// A Handle may be driven automatically with Wait or manually with Poll; all
// methods are safe for concurrent use. Snapshots are replaced wholesale on
// every poll, so an Operation returned by Latest is never mutated later.
type Handle struct {
	ch   *channel.Channel
	opts PollOptions

	mu        sync.Mutex
	op        *longrunningpb.Operation
	state     State
	terr      *Error
	cancelled bool
	driving   int
}

// Track wraps an operation handle returned by an initiating RPC.
//
// initial must be the RPC's response. An operation that is already done
// resolves immediately: neither Track nor a subsequent Wait issues any
// network call for it.
func Track(ch *channel.Channel, initial *longrunningpb.Operation, opts PollOptions) *Handle {
	opts.populateDefaults()
	h := &Handle{ch: ch, opts: opts, state: Pending}
	h.mu.Lock()
	h.foldLocked(initial)
	h.mu.Unlock()
	return h
}

// Latest returns the most recent operation snapshot.
func (h *Handle) Latest() *longrunningpb.Operation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.op
}

// Name returns the tracked operation's server-assigned name.
func (h *Handle) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.op.GetName()
}

// State returns the state machine's current position.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done reports whether the handle reached a terminal state.
func (h *Handle) Done() bool {
	return h.State().Terminal()
}

// Resolve unpacks the operation's response payload into msg.
//
// It is only meaningful once the handle is terminal: a failed or cancelled
// operation returns its terminal error, a pending one an error saying so.
func (h *Handle) Resolve(msg proto.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case Succeeded:
	case Pending:
		return fmt.Errorf("lro: operation %q has not finished", h.op.GetName())
	default:
		return h.terr
	}
	resp := h.op.GetResponse()
	if resp == nil {
		return fmt.Errorf("lro: operation %q finished without a response payload", h.op.GetName())
	}
	return resp.UnmarshalTo(msg)
}

// Metadata unpacks the current snapshot's progress metadata into msg. The
// payload is service-specific; the poller never interprets it.
func (h *Handle) Metadata(msg proto.Message) error {
	h.mu.Lock()
	md := h.op.GetMetadata()
	name := h.op.GetName()
	h.mu.Unlock()
	if md == nil {
		return fmt.Errorf("lro: operation %q carries no metadata", name)
	}
	return md.UnmarshalTo(msg)
}

// apply folds one polled snapshot into the handle and fires the progress
// callback outside the lock.
func (h *Handle) apply(op *longrunningpb.Operation) {
	h.mu.Lock()
	h.foldLocked(op)
	cb := h.opts.OnProgress
	h.mu.Unlock()
	if cb != nil {
		cb(op)
	}
}

// foldLocked records the snapshot and commits a terminal transition if the
// operation finished. A pending cancellation request blocks the commit, so
// the cancel checkpoint decides the terminal state even when a success
// response arrives concurrently.
func (h *Handle) foldLocked(op *longrunningpb.Operation) {
	if h.state.Terminal() {
		return
	}
	h.op = op
	if !op.GetDone() || h.cancelled {
		return
	}
	if st := op.GetError(); st != nil {
		h.commitLocked(Failed, &Error{
			Kind:   KindFailed,
			OpName: op.GetName(),
			Status: status.FromProto(st),
		})
		return
	}
	h.commitLocked(Succeeded, nil)
}

// commitLocked performs the single terminal transition; only the first
// commit wins.
func (h *Handle) commitLocked(s State, terr *Error) {
	if h.state.Terminal() {
		return
	}
	h.state = s
	h.terr = terr
}

// result returns the terminal outcome. The error is nil only for Succeeded.
func (h *Handle) result() (*longrunningpb.Operation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terr != nil {
		return h.op, h.terr
	}
	return h.op, nil
}
