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

package lro

import (
	"context"
	"errors"

	"cloud.google.com/go/longrunning/autogen/longrunningpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/mysticetus/gcpcore/channel"
	"github.com/mysticetus/gcpcore/common/clock"
	"github.com/mysticetus/gcpcore/common/logging"
)

// Wait drives the poll loop until the operation reaches a terminal state and
// returns the final snapshot together with the terminal error, if any.
//
// Each iteration sleeps for the current poll interval, then issues one
// GetOperation (in ServerWait mode, a WaitOperation held open by the server
// replaces the sleep). A transient channel failure during a poll is logged
// and absorbed; it says nothing about the operation itself.
//
// PollOptions.TrackingDeadline, and any deadline already on ctx, bound the
// whole loop; expiry commits Failed with KindTrackingTimedOut. Cancelling
// ctx itself does not finish the operation: Wait returns the context error,
// the handle stays Pending, and tracking can resume with another Wait. Use
// Cancel for cooperative cancellation.
func (h *Handle) Wait(ctx context.Context) (*longrunningpb.Operation, error) {
	if h.opts.TrackingDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = clock.WithTimeout(ctx, h.opts.TrackingDeadline)
		defer cancel()
	}

	h.startDriving()
	defer h.stopDriving()

	bo := h.opts.backoff()
	for {
		if h.Done() {
			return h.result()
		}
		if h.cancelRequested() {
			h.finishCancelled(ctx)
			continue
		}

		if !h.opts.ServerWait {
			if err := h.pause(ctx, bo); err != nil {
				return h.Latest(), err
			}
			if h.Done() {
				return h.result()
			}
			if h.cancelRequested() {
				h.finishCancelled(ctx)
				continue
			}
		}

		err := h.dispatch(ctx)
		if err == nil || h.Done() {
			continue
		}
		if ctx.Err() == nil {
			logging.Fields{
				"operation":      h.Name(),
				logging.ErrorKey: err,
			}.Warningf(ctx, "lro: poll failed transiently, will retry")
		}
		if h.opts.ServerWait {
			// Back off before asking the server to wait again.
			if perr := h.pause(ctx, bo); perr != nil {
				return h.Latest(), perr
			}
		}
	}
}

// Poll performs a single polling step: the cooperative cancellation
// checkpoint, then one dispatch. It never sleeps, making it the manual
// alternative to Wait. The returned error is the dispatch failure, if any;
// consult State for the machine's position.
func (h *Handle) Poll(ctx context.Context) error {
	if h.Done() {
		return nil
	}
	h.startDriving()
	defer h.stopDriving()
	if h.cancelRequested() {
		h.finishCancelled(ctx)
		return nil
	}
	return h.dispatch(ctx)
}

// Cancel requests cooperative cancellation.
//
// The request is recorded and observed at the loop's next checkpoint, before
// each sleep and before each dispatch, so it takes effect within one poll
// interval. Whoever observes it commits the Cancelled state and issues one
// best-effort CancelOperation; the local transition never waits for, or
// depends on, the server's answer. Cancellation wins races: a success
// response arriving concurrently with the request still ends Cancelled.
//
// If no Wait or Poll is driving the handle, Cancel runs the checkpoint
// itself before returning. Cancelling an already terminal handle does
// nothing.
func (h *Handle) Cancel(ctx context.Context) {
	h.mu.Lock()
	if h.state.Terminal() {
		h.mu.Unlock()
		return
	}
	h.cancelled = true
	idle := h.driving == 0
	h.mu.Unlock()

	if idle {
		h.finishCancelled(ctx)
	}
}

// Delete asks the service to drop its record of the operation. This is pure
// bookkeeping: it does not stop the work and leaves the local state machine
// untouched.
func (h *Handle) Delete(ctx context.Context) error {
	return h.ch.Invoke(ctx, deleteOperationMethod,
		&longrunningpb.DeleteOperationRequest{Name: h.Name()}, &emptypb.Empty{})
}

// dispatch issues one GetOperation (or WaitOperation) and folds the result
// into the handle. A permanent channel failure commits the Failed state;
// transient ones are returned for the loop to absorb.
func (h *Handle) dispatch(ctx context.Context) error {
	name := h.Name()
	var out longrunningpb.Operation
	var err error
	if h.opts.ServerWait {
		err = h.ch.Invoke(ctx, waitOperationMethod, &longrunningpb.WaitOperationRequest{
			Name:    name,
			Timeout: durationpb.New(h.opts.MaxInterval),
		}, &out)
	} else {
		err = h.ch.Invoke(ctx, getOperationMethod,
			&longrunningpb.GetOperationRequest{Name: name}, &out)
	}
	if err != nil {
		if pollFailureIsFatal(err) {
			h.mu.Lock()
			h.commitLocked(Failed, &Error{Kind: KindFailed, OpName: name, Err: err})
			h.mu.Unlock()
		}
		return err
	}
	h.apply(&out)
	return nil
}

// pollFailureIsFatal reports whether a failed poll should stop tracking.
// Deadline expiry and caller cancellation are left to the loop's own
// checkpoints, which turn them into KindTrackingTimedOut or a Pending
// return; a cut-off request says nothing about the operation itself.
func pollFailureIsFatal(err error) bool {
	cerr := channel.AsError(err)
	if cerr == nil {
		return true
	}
	if cerr.Code == codes.Canceled {
		return false
	}
	switch cerr.Kind {
	case channel.KindTransient, channel.KindDeadlineExceeded:
		return false
	default:
		return true
	}
}

// pause sleeps for the next backoff interval. Deadline expiry commits the
// timed-out terminal state and returns nil; a plain context cancellation is
// returned without a transition.
func (h *Handle) pause(ctx context.Context, bo *gax.Backoff) error {
	if tr := clock.Sleep(ctx, bo.Pause()); tr.Incomplete() {
		if errors.Is(tr.Err, context.DeadlineExceeded) {
			h.finishTimedOut(tr.Err)
			return nil
		}
		return tr.Err
	}
	return nil
}

// finishCancelled commits the Cancelled state, then notifies the server.
// Only the first caller past the terminal check sends the RPC.
func (h *Handle) finishCancelled(ctx context.Context) {
	h.mu.Lock()
	if h.state.Terminal() {
		h.mu.Unlock()
		return
	}
	name := h.op.GetName()
	h.commitLocked(Cancelled, &Error{Kind: KindCancelled, OpName: name})
	h.mu.Unlock()

	// Best effort: the operation may still finish server side, and a
	// failure to deliver the cancel changes nothing locally.
	err := h.ch.Invoke(ctx, cancelOperationMethod,
		&longrunningpb.CancelOperationRequest{Name: name}, &emptypb.Empty{},
		channel.WithoutRetry())
	if err != nil {
		logging.Fields{
			"operation":      name,
			logging.ErrorKey: err,
		}.Warningf(ctx, "lro: server-side cancel failed")
	}
}

func (h *Handle) finishTimedOut(cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commitLocked(Failed, &Error{
		Kind:   KindTrackingTimedOut,
		OpName: h.op.GetName(),
		Err:    cause,
	})
}

func (h *Handle) cancelRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled && !h.state.Terminal()
}

func (h *Handle) startDriving() {
	h.mu.Lock()
	h.driving++
	h.mu.Unlock()
}

func (h *Handle) stopDriving() {
	h.mu.Lock()
	h.driving--
	h.mu.Unlock()
}
