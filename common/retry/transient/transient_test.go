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

package transient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mysticetus/gcpcore/common/retry"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTag(t *testing.T) {
	t.Parallel()

	Convey(`The transient tag`, t, func() {
		base := errors.New("not working")

		Convey(`Is absent by default and nil-safe.`, func() {
			So(Tag.In(base), ShouldBeFalse)
			So(Tag.Apply(nil), ShouldBeNil)
		})

		Convey(`Marks an error and survives wrapping.`, func() {
			terr := Tag.Apply(base)
			So(Tag.In(terr), ShouldBeTrue)
			So(terr.Error(), ShouldEqual, "not working")
			So(errors.Is(terr, base), ShouldBeTrue)

			wrapped := fmt.Errorf("fetching thing: %w", terr)
			So(Tag.In(wrapped), ShouldBeTrue)
		})

		Convey(`Apply is idempotent.`, func() {
			terr := Tag.Apply(base)
			So(Tag.Apply(terr), ShouldEqual, terr)
		})
	})
}

func TestOnly(t *testing.T) {
	t.Parallel()

	Convey(`transient.Only`, t, func() {
		ctx := context.Background()
		f := Only(func() retry.Iterator {
			return &retry.Limited{Delay: time.Second, Retries: 10}
		})

		Convey(`Continues the schedule for tagged errors.`, func() {
			it := f()
			So(it.Next(ctx, Tag.Apply(errors.New("flaky"))), ShouldEqual, time.Second)
		})

		Convey(`Stops for untagged errors.`, func() {
			it := f()
			So(it.Next(ctx, errors.New("fatal")), ShouldEqual, retry.Stop)
		})

		Convey(`Passes a nil Factory through.`, func() {
			So(Only(nil), ShouldBeNil)
		})
	})
}
