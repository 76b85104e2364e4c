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
	"sync"
	"time"
)

// systemClock passes through to the Go time library.
type systemClock struct{}

var systemClockInstance systemClock

var _ Clock = systemClock{}

// GetSystemClock returns the Clock backed directly by the time library.
func GetSystemClock() Clock {
	return systemClockInstance
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (sc systemClock) Sleep(ctx context.Context, d time.Duration) TimerResult {
	return <-sc.After(ctx, d)
}

func (systemClock) NewTimer(ctx context.Context) Timer {
	return &systemTimer{
		ctx:     ctx,
		resultC: make(chan TimerResult, 1),
	}
}

func (sc systemClock) After(ctx context.Context, d time.Duration) <-chan TimerResult {
	t := sc.NewTimer(ctx)
	t.Reset(d)
	return t.GetC()
}

// systemTimer implements Timer on top of time.Timer.
//
// Each arming runs a monitor goroutine that races the underlying timer
// against context cancellation. The result channel has a one-element buffer;
// Reset and Stop drain it so a stale expiry is never observed after
// reconfiguration.
type systemTimer struct {
	ctx     context.Context
	resultC chan TimerResult

	mu    sync.Mutex
	stopC chan struct{} // non-nil while armed; closing it retires the monitor
}

var _ Timer = (*systemTimer)(nil)

func (t *systemTimer) GetC() <-chan TimerResult {
	return t.resultC
}

func (t *systemTimer) Reset(d time.Duration) bool {
	t.mu.Lock()
	active := t.stopLocked()
	stopC := make(chan struct{})
	t.stopC = stopC
	t.mu.Unlock()

	go t.monitor(d, stopC)
	return active
}

func (t *systemTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked()
}

func (t *systemTimer) stopLocked() bool {
	if t.stopC == nil {
		return false
	}
	close(t.stopC)
	t.stopC = nil
	select {
	case <-t.resultC:
	default:
	}
	return true
}

func (t *systemTimer) monitor(d time.Duration, stopC chan struct{}) {
	tm := time.NewTimer(d)
	defer tm.Stop()

	var r TimerResult
	select {
	case now := <-tm.C:
		r = TimerResult{Time: now}
	case <-t.ctx.Done():
		r = TimerResult{Time: time.Now(), Err: t.ctx.Err()}
	case <-stopC:
		return
	}

	// Deliver only if this arming is still current. The buffer is known to be
	// empty here: Reset/Stop drain it and nothing else writes.
	t.mu.Lock()
	if t.stopC == stopC {
		t.stopC = nil
		t.resultC <- r
	}
	t.mu.Unlock()
}
