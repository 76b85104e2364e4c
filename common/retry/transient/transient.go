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

// Package transient tags errors that are safe to retry.
//
// A transient failure says nothing about the operation's validity, only that
// this attempt did not get through. Wrapping with fmt.Errorf("...: %w", err)
// preserves the tag.
package transient

import (
	"context"
	"errors"
	"time"

	"github.com/mysticetus/gcpcore/common/retry"
)

// Tag is applied to errors to mark them transient.
var Tag tag

type tag struct{}

// Apply marks err as transient. Applying to nil returns nil; applying twice
// is a no-op.
func (tag) Apply(err error) error {
	if err == nil || Tag.In(err) {
		return err
	}
	return taggedError{err}
}

// In reports whether err or anything it wraps carries the transient tag.
func (tag) In(err error) bool {
	var te taggedError
	return errors.As(err, &te)
}

type taggedError struct {
	inner error
}

func (t taggedError) Error() string { return t.inner.Error() }
func (t taggedError) Unwrap() error { return t.inner }

// Only wraps a retry.Factory so the schedule applies solely to transient
// errors; any other error stops the retries immediately.
func Only(next retry.Factory) retry.Factory {
	if next == nil {
		return nil
	}
	return func() retry.Iterator {
		return &onlyIterator{next()}
	}
}

type onlyIterator struct {
	retry.Iterator
}

func (i *onlyIterator) Next(ctx context.Context, err error) time.Duration {
	if !Tag.In(err) {
		return retry.Stop
	}
	return i.Iterator.Next(ctx, err)
}
