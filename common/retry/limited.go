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
	"time"

	"github.com/mysticetus/gcpcore/common/clock"
)

// Limited is an Iterator that waits a fixed Delay between attempts and stops
// after a bounded number of retries or a bounded total duration.
type Limited struct {
	Delay   time.Duration
	Retries int // negative means unlimited

	// MaxTotal bounds the total elapsed time across the whole schedule,
	// measured from the first Next call. Zero means unbounded.
	MaxTotal time.Duration

	startTime time.Time
}

var _ Iterator = (*Limited)(nil)

func (i *Limited) Next(ctx context.Context, _ error) time.Duration {
	if i.Retries == 0 {
		return Stop
	}
	if i.MaxTotal > 0 {
		now := clock.Now(ctx)
		if i.startTime.IsZero() {
			i.startTime = now
		}
		if now.Sub(i.startTime) >= i.MaxTotal {
			return Stop
		}
	}
	if i.Retries > 0 {
		i.Retries--
	}
	return i.Delay
}
