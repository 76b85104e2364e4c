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

// Package testclock implements a programmable clock for tests.
//
// Time never advances on its own; tests move it with Set or Add. Timers armed
// against the clock fire when the clock passes their threshold. The timer
// callback lets a test advance time automatically whenever code under test
// goes to sleep, which is how retry and polling loops are driven
// deterministically.
package testclock

import (
	"context"
	"sync"
	"time"

	"github.com/mysticetus/gcpcore/common/clock"
)

// TestClock is a Clock with extra instrumentation hooks for tests.
type TestClock interface {
	clock.Clock

	// Set moves the clock to the given time. Going backwards panics.
	Set(t time.Time)

	// Add advances the clock by d.
	Add(d time.Duration)

	// SetTimerCallback installs a callback invoked every time a timer is
	// armed. Useful for advancing the clock as soon as something sleeps.
	SetTimerCallback(cb TimerCallback)
}

// TimerCallback is invoked when a timer is armed, with the timer's duration.
type TimerCallback func(d time.Duration, t clock.Timer)

type testClock struct {
	mu   sync.Mutex
	cond *sync.Cond // broadcast on time change or waiter retirement

	now time.Time
	cb  TimerCallback
}

var _ TestClock = (*testClock)(nil)

// New returns a TestClock frozen at the given time.
func New(now time.Time) TestClock {
	c := &testClock{now: now}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Sleep(ctx context.Context, d time.Duration) clock.TimerResult {
	return <-c.After(ctx, d)
}

func (c *testClock) NewTimer(ctx context.Context) clock.Timer {
	return &timer{
		ctx:     ctx,
		clk:     c,
		resultC: make(chan clock.TimerResult, 1),
	}
}

func (c *testClock) After(ctx context.Context, d time.Duration) <-chan clock.TimerResult {
	t := c.NewTimer(ctx)
	t.Reset(d)
	return t.GetC()
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(t)
}

func (c *testClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(c.now.Add(d))
}

func (c *testClock) setLocked(t time.Time) {
	if t.Before(c.now) {
		panic("testclock: cannot go backwards in time")
	}
	c.now = t
	c.cond.Broadcast()
}

func (c *testClock) SetTimerCallback(cb TimerCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = cb
}

func (c *testClock) signalTimerSet(d time.Duration, t clock.Timer) {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	if cb != nil {
		cb(d, t)
	}
}

// poke wakes all waiters so they re-examine their stop and context state.
func (c *testClock) poke() {
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}

// timer is a Timer driven by testClock time changes.
type timer struct {
	ctx     context.Context
	clk     *testClock
	resultC chan clock.TimerResult

	mu    sync.Mutex
	stopC chan struct{} // non-nil while armed
}

var _ clock.Timer = (*timer)(nil)

func (t *timer) GetC() <-chan clock.TimerResult {
	return t.resultC
}

func (t *timer) Reset(d time.Duration) bool {
	t.mu.Lock()
	active := t.stopLocked()
	stopC := make(chan struct{})
	t.stopC = stopC
	threshold := t.clk.Now().Add(d)
	t.mu.Unlock()

	go t.wait(threshold, stopC)
	t.clk.signalTimerSet(d, t)
	return active
}

func (t *timer) Stop() bool {
	t.mu.Lock()
	active := t.stopLocked()
	t.mu.Unlock()

	// Wake the retired waiter so it can exit.
	t.clk.poke()
	return active
}

func (t *timer) stopLocked() bool {
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

func (t *timer) wait(threshold time.Time, stopC chan struct{}) {
	c := t.clk
	finishedC := make(chan struct{})
	defer close(finishedC)

	// Context watcher: a cancellation must wake the condition loop below.
	go func() {
		select {
		case <-t.ctx.Done():
			c.poke()
		case <-finishedC:
		}
	}()

	stopped := func() bool {
		select {
		case <-stopC:
			return true
		default:
			return false
		}
	}

	c.mu.Lock()
	for t.ctx.Err() == nil && c.now.Before(threshold) {
		if stopped() {
			c.mu.Unlock()
			return
		}
		c.cond.Wait()
	}
	now := c.now
	c.mu.Unlock()

	if stopped() {
		return
	}

	// Deliver only if this arming is still current; the buffer is empty for
	// the current arming (Reset/Stop drain it).
	t.mu.Lock()
	if t.stopC == stopC {
		t.stopC = nil
		t.resultC <- clock.TimerResult{Time: now, Err: t.ctx.Err()}
	}
	t.mu.Unlock()
}
