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

// WithDeadline is the clock-driven analogue of context.WithDeadline.
//
// The expiry is observed through the context's Clock rather than the system
// timer, so contexts built here honor testclock manipulation. If the parent
// already carries an earlier deadline, that one is kept.
func WithDeadline(parent context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	if pd, ok := parent.Deadline(); ok && pd.Before(deadline) {
		deadline = pd
	}

	cctx, cancel := context.WithCancel(parent)
	c := &deadlineContext{Context: cctx, deadline: deadline}

	d := deadline.Sub(Now(parent))
	if d <= 0 {
		c.expire()
		cancel()
		return c, cancel
	}

	go func() {
		if r := <-After(cctx, d); !r.Incomplete() {
			c.expire()
			cancel()
		}
	}()
	return c, cancel
}

// WithTimeout is the clock-driven analogue of context.WithTimeout.
func WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return WithDeadline(parent, Now(parent).Add(timeout))
}

// deadlineContext layers a clock-driven deadline over a cancellable context.
type deadlineContext struct {
	context.Context

	deadline time.Time

	mu       sync.Mutex
	timedOut bool
}

func (c *deadlineContext) Deadline() (time.Time, bool) {
	return c.deadline, true
}

func (c *deadlineContext) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timedOut {
		return context.DeadlineExceeded
	}
	return c.Context.Err()
}

func (c *deadlineContext) expire() {
	c.mu.Lock()
	c.timedOut = true
	c.mu.Unlock()
}
