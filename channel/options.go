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
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"

	"github.com/mysticetus/gcpcore/auth"
	"github.com/mysticetus/gcpcore/common/retry"
)

// Version identifies this client layer in request headers.
const Version = "0.1.0"

// RetryPolicy governs how a channel retries failed attempts of one logical
// call.
//
// The delay before attempt n+1 is min(BaseDelay * Multiplier^(n-1), MaxDelay)
// randomized within ±JitterFraction. The pre-jitter delay never decreases.
// The call's deadline bounds the sum of all attempts, not each one.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 mean the default of 3.
	MaxAttempts int

	// BaseDelay is the backoff before the first retry. Default 100ms.
	BaseDelay time.Duration

	// Multiplier grows the delay after each retry. Default 2.
	Multiplier float64

	// MaxDelay caps the grown delay. Default 10s.
	MaxDelay time.Duration

	// JitterFraction randomizes each delay within ±fraction. Default 0.2.
	JitterFraction float64

	// Retryable decides, by code, whether a failed attempt may be retried.
	// The default set is Unavailable and ResourceExhausted. Errors carrying
	// the transient tag (network-level failures) are always retried.
	Retryable func(codes.Code) bool
}

// DefaultRetryPolicy returns the policy used when Options.Retry is zero.
func DefaultRetryPolicy() RetryPolicy {
	p := RetryPolicy{}
	p.populateDefaults()
	return p
}

func (p *RetryPolicy) populateDefaults() {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.JitterFraction <= 0 {
		p.JitterFraction = 0.2
	}
	if p.Retryable == nil {
		p.Retryable = RetryableByDefault
	}
}

// backoff builds the retry iterator factory for one logical call.
func (p *RetryPolicy) backoff() retry.Factory {
	return func() retry.Iterator {
		return &retry.ExponentialBackoff{
			Limited: retry.Limited{
				Delay:   p.BaseDelay,
				Retries: p.MaxAttempts - 1,
			},
			Multiplier: p.Multiplier,
			MaxDelay:   p.MaxDelay,
			Jitter:     p.JitterFraction,
		}
	}
}

// RetryableByDefault is the default retryable-code predicate.
func RetryableByDefault(code codes.Code) bool {
	return code == codes.Unavailable || code == codes.ResourceExhausted
}

// AttemptInfo describes one finished attempt of a logical call, for
// observability hooks.
type AttemptInfo struct {
	// Method is the full method name ("/pkg.Service/Method" for gRPC,
	// "VERB /path" for REST).
	Method string

	// Attempt is 1-based.
	Attempt int

	// Code classifies the outcome; codes.OK for success.
	Code codes.Code

	// Err is the attempt's error, nil on success.
	Err error
}

// Options configure a channel.
type Options struct {
	// Scopes is the default scope set tokens are minted for. Empty defers to
	// the authenticator's own default.
	Scopes []auth.Scope

	// CallTimeout, when positive, bounds each logical unary call (the sum of
	// its attempts) unless the caller's context already has an earlier
	// deadline. Zero means no channel-imposed deadline. Streams are exempt.
	CallTimeout time.Duration

	// Retry is the channel-wide retry policy; per-call options can override.
	Retry RetryPolicy

	// UserAgent is prepended to the default user agent.
	UserAgent string

	// UserProject, when set, is sent as x-goog-user-project for billing
	// attribution.
	UserProject string

	// QPSLimit throttles attempt dispatch when set. The limiter waits in
	// real time and respects the call context.
	QPSLimit *rate.Limiter

	// OnAttempt, when set, is invoked after every attempt. Must be fast and
	// must not block; it runs on the calling goroutine.
	OnAttempt func(AttemptInfo)

	// Insecure dials plaintext instead of TLS. For emulators only.
	Insecure bool

	// DialOptions are appended to the options Dial computes.
	DialOptions []grpc.DialOption
}

func (o *Options) populateDefaults() {
	o.Retry.populateDefaults()
}

// userAgent combines the caller's product token with ours.
func (o *Options) userAgent() string {
	return strings.TrimSpace(o.UserAgent + " gcpcore/" + Version)
}
