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

package testclock

import (
	"context"
	"time"

	"github.com/mysticetus/gcpcore/common/clock"
)

// TestTimeUTC is an arbitrary time point in UTC for testing.
var TestTimeUTC = time.Date(2024, time.February, 3, 4, 5, 6, 7, time.UTC)

// TestTimeLocal is an arbitrary time point in the local zone for testing.
var TestTimeLocal = time.Date(2024, time.February, 3, 4, 5, 6, 7, time.Local)

// UseTime returns a context carrying a new TestClock set to now, plus the
// clock itself.
func UseTime(ctx context.Context, now time.Time) (context.Context, TestClock) {
	tc := New(now)
	return clock.Set(ctx, tc), tc
}
