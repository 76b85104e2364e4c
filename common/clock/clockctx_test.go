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

package clock

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// manualClock is a partial Clock implementation that lets the test decide
// when timers fire.
type manualClock struct {
	Clock

	now             time.Time
	timeoutCallback func(time.Duration) bool
	testFinishedC   chan struct{}
}

func (mc *manualClock) Now() time.Time {
	return mc.now
}

func (mc *manualClock) After(ctx context.Context, d time.Duration) <-chan TimerResult {
	resultC := make(chan TimerResult)
	go func() {
		r := TimerResult{}
		defer func() {
			resultC <- r
		}()

		if cb := mc.timeoutCallback; cb != nil && cb(d) {
			return
		}

		select {
		case <-ctx.Done():
			r.Err = ctx.Err()
		case <-mc.testFinishedC:
		}
	}()
	return resultC
}

func wait(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestClockContext(t *testing.T) {
	t.Parallel()

	Convey(`A manual testing clock`, t, func() {
		mc := manualClock{
			now:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local),
			testFinishedC: make(chan struct{}),
		}
		defer close(mc.testFinishedC)

		Convey(`A deadline context wrapping a cancellable parent`, func() {
			cctx, pcf := context.WithCancel(Set(context.Background(), &mc))
			ctx, cf := WithTimeout(cctx, 10*time.Millisecond)

			Convey(`Reports its deadline.`, func() {
				deadline, ok := ctx.Deadline()
				So(ok, ShouldBeTrue)
				So(deadline.After(mc.now), ShouldBeTrue)
			})

			Convey(`Times out when its timer fires.`, func() {
				mc.timeoutCallback = func(time.Duration) bool {
					return true
				}
				So(wait(ctx), ShouldEqual, context.DeadlineExceeded)
			})

			Convey(`Cancels with its own cancel func.`, func() {
				go cf()
				So(wait(ctx), ShouldEqual, context.Canceled)
			})

			Convey(`Cancels when the parent is cancelled.`, func() {
				go pcf()
				So(wait(ctx), ShouldEqual, context.Canceled)
			})
		})

		Convey(`A deadline context whose parent has a shorter deadline`, func() {
			cctx, cancel := WithTimeout(Set(context.Background(), &mc), 10*time.Millisecond)
			defer cancel()
			ctx, cf := WithTimeout(cctx, time.Hour)

			Convey(`Adopts the parent deadline.`, func() {
				mc.timeoutCallback = func(d time.Duration) bool {
					return d == 10*time.Millisecond
				}
				So(wait(ctx), ShouldEqual, context.DeadlineExceeded)
			})

			Convey(`Still cancels with its own cancel func.`, func() {
				go cf()
				So(wait(ctx), ShouldEqual, context.Canceled)
			})
		})

		Convey(`A deadline already in the past times out immediately.`, func() {
			ctx, cancel := WithDeadline(Set(context.Background(), &mc), mc.now.Add(-time.Second))
			defer cancel()
			So(wait(ctx), ShouldEqual, context.DeadlineExceeded)
		})
	})
}
