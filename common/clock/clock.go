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

// Package clock is a context-carried interface to time.
//
// Production code reaches the real time library through the Clock installed
// in its context (the system clock by default). Tests install a testclock
// instead, making every sleep, timer and deadline in the code under test
// deterministic.
package clock

import (
	"context"
	"time"
)

// Clock is an interface to system time.
//
// The default implementation is the system clock. A programmable replacement
// lives in the testclock subpackage.
type Clock interface {
	// Now returns the current time (see time.Now).
	Now() time.Time

	// Sleep suspends the current goroutine for the given duration.
	//
	// The returned TimerResult records when the sleep ended. If the sleep was
	// interrupted by context cancellation, TimerResult.Incomplete() returns
	// true and its Err holds the reason.
	Sleep(ctx context.Context, d time.Duration) TimerResult

	// NewTimer creates a new, unarmed Timer bound to this Clock.
	//
	// If the supplied context is cancelled, an armed timer expires
	// immediately with the cancellation error.
	NewTimer(ctx context.Context) Timer

	// After waits a duration, then sends the current time over the returned
	// channel.
	//
	// If the supplied context is cancelled, the wait ends immediately.
	After(ctx context.Context, d time.Duration) <-chan TimerResult
}

var clockKey = "clock.Clock"

// Factory produces a Clock for the given context.
type Factory func(context.Context) Clock

// SetFactory returns a context whose Clock is produced by f.
func SetFactory(ctx context.Context, f Factory) context.Context {
	return context.WithValue(ctx, &clockKey, f)
}

// Set returns a context carrying the supplied Clock.
func Set(ctx context.Context, c Clock) context.Context {
	return SetFactory(ctx, func(context.Context) Clock { return c })
}

// Get returns the Clock installed in ctx, defaulting to the system clock.
func Get(ctx context.Context) Clock {
	if f, ok := ctx.Value(&clockKey).(Factory); ok {
		if c := f(ctx); c != nil {
			return c
		}
	}
	return GetSystemClock()
}

// Now calls Clock.Now on the context's clock.
func Now(ctx context.Context) time.Time {
	return Get(ctx).Now()
}

// Sleep calls Clock.Sleep on the context's clock.
func Sleep(ctx context.Context, d time.Duration) TimerResult {
	return Get(ctx).Sleep(ctx, d)
}

// NewTimer calls Clock.NewTimer on the context's clock.
func NewTimer(ctx context.Context) Timer {
	return Get(ctx).NewTimer(ctx)
}

// After calls Clock.After on the context's clock.
func After(ctx context.Context, d time.Duration) <-chan TimerResult {
	return Get(ctx).After(ctx, d)
}

// Since is the equivalent of time.Since on the context's clock.
func Since(ctx context.Context, t time.Time) time.Duration {
	return Now(ctx).Sub(t)
}

// Until is the equivalent of time.Until on the context's clock.
func Until(ctx context.Context, t time.Time) time.Duration {
	return t.Sub(Now(ctx))
}
