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
	"fmt"
	"sort"
	"strings"
)

// ErrorKey is the conventional field key for attached errors.
const ErrorKey = "error"

// Fields are structured key/value pairs attached to log lines.
type Fields map[string]any

// WithError returns Fields carrying err under ErrorKey.
func WithError(err error) Fields {
	return Fields{ErrorKey: err}
}

// Copy returns a new Fields merging f with other; other wins on conflicts.
func (f Fields) Copy(other Fields) Fields {
	merged := make(Fields, len(f)+len(other))
	for k, v := range f {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// String renders the fields sorted by key, for backends that append them to
// the message line.
func (f Fields) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%q:%q", k, fmt.Sprint(f[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Debugf logs at Debug level with these fields attached.
func (f Fields) Debugf(ctx context.Context, format string, args ...any) {
	Get(SetFields(ctx, f)).LogCall(Debug, 1, format, args)
}

// Infof logs at Info level with these fields attached.
func (f Fields) Infof(ctx context.Context, format string, args ...any) {
	Get(SetFields(ctx, f)).LogCall(Info, 1, format, args)
}

// Warningf logs at Warning level with these fields attached.
func (f Fields) Warningf(ctx context.Context, format string, args ...any) {
	Get(SetFields(ctx, f)).LogCall(Warning, 1, format, args)
}

// Errorf logs at Error level with these fields attached.
func (f Fields) Errorf(ctx context.Context, format string, args ...any) {
	Get(SetFields(ctx, f)).LogCall(Error, 1, format, args)
}

// SetFields returns a context with the given fields merged over any already
// present.
func SetFields(ctx context.Context, f Fields) context.Context {
	return context.WithValue(ctx, &fieldsKey, GetFields(ctx).Copy(f))
}

// SetField returns a context with one extra field.
func SetField(ctx context.Context, key string, value any) context.Context {
	return SetFields(ctx, Fields{key: value})
}

// GetFields returns the fields attached to ctx, nil if none.
func GetFields(ctx context.Context) Fields {
	if f, ok := ctx.Value(&fieldsKey).(Fields); ok {
		return f
	}
	return nil
}
