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

import "context"

// SetError returns a context with its error field set.
func SetError(ctx context.Context, err error) context.Context {
	return SetField(ctx, ErrorKey, err)
}

// Debugf logs to the context's logger at Debug level.
func Debugf(ctx context.Context, format string, args ...any) {
	Get(ctx).LogCall(Debug, 1, format, args)
}

// Infof logs to the context's logger at Info level.
func Infof(ctx context.Context, format string, args ...any) {
	Get(ctx).LogCall(Info, 1, format, args)
}

// Warningf logs to the context's logger at Warning level.
func Warningf(ctx context.Context, format string, args ...any) {
	Get(ctx).LogCall(Warning, 1, format, args)
}

// Errorf logs to the context's logger at Error level.
func Errorf(ctx context.Context, format string, args ...any) {
	Get(ctx).LogCall(Error, 1, format, args)
}

// Logf logs at the given level.
func Logf(ctx context.Context, l Level, format string, args ...any) {
	Get(ctx).LogCall(l, 1, format, args)
}
