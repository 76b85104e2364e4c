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

package logging

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// recorded is one captured log entry.
type recorded struct {
	level Level
	text  string
	f     Fields
}

// recorder captures entries for assertions.
type recorder struct {
	ctx     context.Context
	entries *[]recorded
}

func (r *recorder) Debugf(format string, args ...any)   { r.LogCall(Debug, 1, format, args) }
func (r *recorder) Infof(format string, args ...any)    { r.LogCall(Info, 1, format, args) }
func (r *recorder) Warningf(format string, args ...any) { r.LogCall(Warning, 1, format, args) }
func (r *recorder) Errorf(format string, args ...any)   { r.LogCall(Error, 1, format, args) }

func (r *recorder) LogCall(l Level, _ int, format string, args []any) {
	if !IsLogging(r.ctx, l) {
		return
	}
	*r.entries = append(*r.entries, recorded{
		level: l,
		text:  fmt.Sprintf(format, args...),
		f:     GetFields(r.ctx),
	})
}

func use(ctx context.Context, entries *[]recorded) context.Context {
	return SetFactory(ctx, func(c context.Context) Logger {
		return &recorder{ctx: c, entries: entries}
	})
}

func TestLogging(t *testing.T) {
	t.Parallel()

	Convey(`A context without a backend`, t, func() {
		ctx := context.Background()

		Convey(`Returns the Null logger and swallows calls.`, func() {
			So(Get(ctx), ShouldEqual, Null)
			So(func() { Errorf(ctx, "nobody home: %d", 1) }, ShouldNotPanic)
		})
	})

	Convey(`A context with a recording backend`, t, func() {
		var entries []recorded
		ctx := use(context.Background(), &entries)

		Convey(`Routes helper calls at their level.`, func() {
			Debugf(ctx, "d")
			Infof(ctx, "i %d", 42)
			Warningf(ctx, "w")
			Errorf(ctx, "e")

			// Default level is Info, so Debug is dropped.
			So(len(entries), ShouldEqual, 3)
			So(entries[0].level, ShouldEqual, Info)
			So(entries[0].text, ShouldEqual, "i 42")
			So(entries[2].level, ShouldEqual, Error)
		})

		Convey(`SetLevel opens and closes the gate.`, func() {
			Debugf(SetLevel(ctx, Debug), "now visible")
			So(len(entries), ShouldEqual, 1)

			Warningf(SetLevel(ctx, Error), "filtered")
			So(len(entries), ShouldEqual, 1)
		})

		Convey(`Fields merge along the context chain, later wins.`, func() {
			ctx = SetFields(ctx, Fields{"a": 1, "b": "x"})
			ctx = SetField(ctx, "b", "y")
			Infof(ctx, "with fields")

			So(len(entries), ShouldEqual, 1)
			So(entries[0].f, ShouldResemble, Fields{"a": 1, "b": "y"})
		})

		Convey(`Fields log helpers attach call-site fields over context ones.`, func() {
			ctx = SetFields(ctx, Fields{"a": 1})
			Fields{"b": 2}.Warningf(ctx, "both")

			So(len(entries), ShouldEqual, 1)
			So(entries[0].f, ShouldResemble, Fields{"a": 1, "b": 2})
		})

		Convey(`WithError and SetError store under ErrorKey.`, func() {
			err := errors.New("broke")
			WithError(err).Errorf(ctx, "oops")
			Errorf(SetError(ctx, err), "oops again")

			So(len(entries), ShouldEqual, 2)
			So(entries[0].f[ErrorKey], ShouldEqual, err)
			So(entries[1].f[ErrorKey], ShouldEqual, err)
		})
	})

	Convey(`Fields render sorted and quoted.`, t, func() {
		f := Fields{"b": "two", "a": 1, ErrorKey: errors.New("sad")}
		So(f.String(), ShouldEqual, `{"a":"1", "b":"two", "error":"sad"}`)
	})
}
