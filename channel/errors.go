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

package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mysticetus/gcpcore/auth"
)

// ErrorKind classifies how a logical call ended. The set is closed.
type ErrorKind int

const (
	// KindTransient: the failure class was retryable but attempts ran out.
	KindTransient ErrorKind = iota + 1

	// KindPermanent: retrying the identical call cannot help.
	KindPermanent

	// KindUnauthenticated: the server rejected the credentials even after a
	// forced token refresh.
	KindUnauthenticated

	// KindDeadlineExceeded: the call's deadline expired, during an attempt
	// or between them.
	KindDeadlineExceeded
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindDeadlineExceeded:
		return "deadline exceeded"
	default:
		return fmt.Sprintf("unknown kind %d", int(k))
	}
}

// Error is returned for every failed logical call.
type Error struct {
	// Kind classifies the overall outcome.
	Kind ErrorKind

	// Code is the status code of the last attempt.
	Code codes.Code

	// Method is the full method name of the call.
	Method string

	// Attempts is how many attempts were dispatched.
	Attempts int

	// Err is the last attempt's error.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("call %s: %s (code %s) after %d attempt(s): %s",
		e.Method, e.Kind, e.Code, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// GRPCStatus lets status.FromError and status.Code see through the wrapper.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Error())
}

// AsError unwraps err into a *channel.Error, or returns nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Code returns the status code used to classify err.
//
// Status errors report their own code; context errors map to Canceled and
// DeadlineExceeded; credential errors map by their kind (an unavailable
// source behaves like an Unavailable backend, a refusal like
// PermissionDenied, and a configuration mistake like FailedPrecondition);
// everything else is Unknown.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case auth.IsUnavailable(err):
		return codes.Unavailable
	case auth.IsDenied(err):
		return codes.PermissionDenied
	case auth.IsInvalidConfiguration(err):
		return codes.FailedPrecondition
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	return codes.Unknown
}

// statusFromHTTP maps an HTTP status onto the status code the gRPC surface
// would have produced, so both bindings share one classification.
//
// The mapping follows https://cloud.google.com/apis/design/errors inverted,
// except that the 5xx family (and 408) all land on Unavailable so the
// retryable set treats server-side trouble uniformly.
func statusFromHTTP(httpStatus int) codes.Code {
	if httpStatus >= 200 && httpStatus < 300 {
		return codes.OK
	}
	switch httpStatus {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.Aborted
	case http.StatusGone:
		return codes.DataLoss
	case http.StatusPreconditionFailed:
		return codes.FailedPrecondition
	case http.StatusRequestedRangeNotSatisfiable:
		return codes.OutOfRange
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case 499:
		return codes.Canceled
	case http.StatusNotImplemented:
		return codes.Unimplemented
	case http.StatusRequestTimeout:
		return codes.Unavailable
	}
	if httpStatus >= 500 {
		return codes.Unavailable
	}
	return codes.Unknown
}
