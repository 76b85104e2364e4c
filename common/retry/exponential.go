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

package retry

import (
	"context"
	"math/rand"
	"time"
)

// ExponentialBackoff is an Iterator whose delay grows multiplicatively per
// attempt, bounded by MaxDelay, with optional symmetric jitter.
//
// The unjittered schedule is non-decreasing; Jitter perturbs only the
// returned values.
type ExponentialBackoff struct {
	Limited

	// Multiplier scales the delay after each attempt. Values below 1 are
	// treated as the default of 2.
	Multiplier float64

	// MaxDelay caps the unjittered delay. Zero or negative means uncapped.
	MaxDelay time.Duration

	// Jitter, in [0, 1), randomizes each returned delay uniformly within
	// ±Jitter of its unjittered value. Zero disables randomization.
	Jitter float64

	rand *rand.Rand // tests may seed this for reproducible schedules
}

var _ Iterator = (*ExponentialBackoff)(nil)

func (b *ExponentialBackoff) Next(ctx context.Context, err error) time.Duration {
	delay := b.Limited.Next(ctx, err)
	if delay == Stop {
		return Stop
	}
	if b.MaxDelay > 0 && delay > b.MaxDelay {
		delay = b.MaxDelay
	}

	// Grow the base for the following attempt.
	growth := b.Multiplier
	if growth < 1 {
		growth = 2
	}
	b.Delay = time.Duration(float64(b.Delay) * growth)

	return b.jittered(delay)
}

func (b *ExponentialBackoff) jittered(d time.Duration) time.Duration {
	if b.Jitter <= 0 || d <= 0 {
		return d
	}
	roll := rand.Float64
	if b.rand != nil {
		roll = b.rand.Float64
	}
	// Uniform in [d*(1-Jitter), d*(1+Jitter)].
	scale := 1 - b.Jitter + 2*b.Jitter*roll()
	if j := time.Duration(float64(d) * scale); j > 0 {
		return j
	}
	return 0
}

// Default returns the stock retry Factory used when a caller does not supply
// its own schedule: 200ms doubling to a 10s cap, 10 retries, 10% jitter.
func Default() Iterator {
	return &ExponentialBackoff{
		Limited: Limited{
			Delay:   200 * time.Millisecond,
			Retries: 10,
		},
		Multiplier: 2,
		MaxDelay:   10 * time.Second,
		Jitter:     0.1,
	}
}
