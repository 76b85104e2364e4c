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
	"errors"
	"fmt"

	"google.golang.org/grpc/status"
)

// ErrorKind classifies how tracking ended without a usable response.
type ErrorKind int

const (
	// KindFailed: the operation itself reported an error, or a permanent
	// channel failure stopped tracking.
	KindFailed ErrorKind = iota + 1

	// KindCancelled: cancellation was requested and committed.
	KindCancelled

	// KindTrackingTimedOut: the tracking deadline expired before the
	// operation finished. The operation may still be running server side.
	KindTrackingTimedOut
)

func (k ErrorKind) String() string {
	switch k {
	case KindFailed:
		return "failed"
	case KindCancelled:
		return "cancelled"
	case KindTrackingTimedOut:
		return "tracking timed out"
	default:
		return fmt.Sprintf("unknown kind %d", int(k))
	}
}

// Error is the terminal error for a tracked operation.
type Error struct {
	// Kind classifies the outcome.
	Kind ErrorKind

	// OpName is the operation's server-assigned name.
	OpName string

	// Status is the server-reported cause, set when the operation itself
	// finished with an error.
	Status *status.Status

	// Err is the underlying tracking failure, when one caused this.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("operation %q %s", e.OpName, e.Kind)
	switch {
	case e.Status != nil:
		return fmt.Sprintf("%s: %s: %s", msg, e.Status.Code(), e.Status.Message())
	case e.Err != nil:
		return fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError unwraps err into an *lro.Error if one is in its chain, otherwise
// returns nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
