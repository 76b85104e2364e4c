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
	"time"
)

// Timer is a clock-bound analogue of time.Timer.
//
// A Timer is created unarmed by Clock.NewTimer and armed with Reset.
type Timer interface {
	// GetC returns the timer's result channel.
	//
	// The channel does not change across Reset calls. A stopped timer's
	// channel blocks indefinitely, consistent with time.Timer.
	GetC() <-chan TimerResult

	// Reset arms the timer to expire after d, clearing any previous state.
	// It returns true if the timer was active when it was reconfigured.
	Reset(d time.Duration) bool

	// Stop disarms the timer. It returns true if the timer was active.
	Stop() bool
}

// TimerResult is delivered when a timer fires or a sleep ends.
//
// Time is when the result was produced. If the wait ended early because of
// context cancellation, Err holds the reason.
type TimerResult struct {
	time.Time

	Err error
}

// Incomplete reports whether the wait ended prematurely due to context
// cancellation or deadline expiration.
func (tr TimerResult) Incomplete() bool {
	return tr.Err != nil
}
