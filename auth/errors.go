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

package auth

import (
	"errors"
	"fmt"

	"github.com/mysticetus/gcpcore/common/retry/transient"
)

// ErrorKind classifies credential failures. The set is closed: every error
// surfaced by this package carries exactly one kind.
type ErrorKind int

const (
	// KindUnavailable means the credential source could not be reached or
	// answered with a server-side failure. Retrying may help; errors of this
	// kind carry the transient tag.
	KindUnavailable ErrorKind = iota + 1

	// KindInvalidConfiguration means the supplied configuration can never
	// work: a malformed key file, a missing required field, no detectable
	// credential source. Reported eagerly, at construction time when
	// possible.
	KindInvalidConfiguration

	// KindDenied means the source answered and refused: bad grant, revoked
	// refresh token, unknown service account. Retrying the same request will
	// not help.
	KindDenied
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindInvalidConfiguration:
		return "invalid configuration"
	case KindDenied:
		return "denied"
	default:
		return fmt.Sprintf("unknown kind %d", int(k))
	}
}

// Error is the error type returned by credential providers and the
// Authenticator.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Source names the credential source that failed ("metadata-server",
	// "service-account", "authorized-user", "emulator").
	Source string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s credentials: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s credentials: %s: %s", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// errUnavailable wraps err as a retryable source failure. The transient tag
// is applied so retry policies pick it up.
func errUnavailable(source string, err error) error {
	return transient.Tag.Apply(&Error{Kind: KindUnavailable, Source: source, Err: err})
}

func errInvalidConfiguration(source, format string, args ...any) error {
	return &Error{Kind: KindInvalidConfiguration, Source: source, Err: fmt.Errorf(format, args...)}
}

func errDenied(source string, err error) error {
	return &Error{Kind: KindDenied, Source: source, Err: err}
}

// IsUnavailable reports whether err is a credential error of kind
// KindUnavailable.
func IsUnavailable(err error) bool {
	return kindOf(err) == KindUnavailable
}

// IsInvalidConfiguration reports whether err is a credential error of kind
// KindInvalidConfiguration.
func IsInvalidConfiguration(err error) bool {
	return kindOf(err) == KindInvalidConfiguration
}

// IsDenied reports whether err is a credential error of kind KindDenied.
func IsDenied(err error) bool {
	return kindOf(err) == KindDenied
}

func kindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
