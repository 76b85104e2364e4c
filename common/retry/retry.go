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

// Package retry provides a library for retrying operations with configurable
// backoff schedules.
//
// A Factory produces a fresh Iterator per logical operation; the Iterator
// decides, error by error, how long to wait before the next attempt or when
// to give up. Sleeps go through the clock package, so retry schedules are
// fully testable.
package retry

import (
	"context"
	"time"

	"github.com/mysticetus/gcpcore/common/clock"
	"github.com/mysticetus/gcpcore/common/logging"
)

// Stop is returned from Iterator.Next to instruct Retry to stop retrying.
const Stop time.Duration = -1

// Iterator describes a retry schedule for a single operation.
type Iterator interface {
	// Next returns the delay before the next attempt, given the error from
	// the previous one, or Stop if no more attempts should be made.
	Next(ctx context.Context, err error) time.Duration
}

// Factory returns a fresh Iterator. Each retried operation gets its own.
type Factory func() Iterator

// Callback is invoked before each sleep with the failure and the chosen
// delay.
type Callback func(err error, wait time.Duration)

// LogCallback returns a Callback that logs a warning naming the operation.
func LogCallback(ctx context.Context, opname string) Callback {
	return func(err error, wait time.Duration) {
		logging.Fields{
			logging.ErrorKey: err,
		}.Warningf(ctx, "%s failed transiently. Will retry in %s", opname, wait)
	}
}

// Retry runs fn, retrying failures on the schedule produced by f.
//
// A nil Factory executes fn exactly once. The returned error is the one from
// the final attempt; if the sleep between attempts is interrupted by context
// cancellation, the last attempt's error is returned as well.
func Retry(ctx context.Context, f Factory, fn func() error, cb Callback) (err error) {
	var it Iterator
	if f != nil {
		it = f()
	}
	for {
		if err = fn(); err == nil || it == nil {
			return
		}

		wait := it.Next(ctx, err)
		if wait == Stop {
			return
		}
		if cb != nil {
			cb(err, wait)
		}
		if wait > 0 {
			if tr := clock.Sleep(ctx, wait); tr.Incomplete() {
				return
			}
		}
	}
}
