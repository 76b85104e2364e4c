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

// Package logging defines a context-carried logging facade.
//
// Library code logs through whatever Logger is installed in its context and
// stays silent when none is. Binaries pick a backend once, near main (see the
// gologger subpackage for a console backend).
package logging

import (
	"context"
)

// Logger is the interface backends implement.
type Logger interface {
	// Debugf formats and logs its arguments at Debug level.
	Debugf(format string, args ...any)
	// Infof formats and logs its arguments at Info level.
	Infof(format string, args ...any)
	// Warningf formats and logs its arguments at Warning level.
	Warningf(format string, args ...any)
	// Errorf formats and logs its arguments at Error level.
	Errorf(format string, args ...any)

	// LogCall is the generic entry point the helpers in this package funnel
	// through. calldepth is the number of stack frames between the caller to
	// attribute and this call.
	LogCall(l Level, calldepth int, format string, args []any)
}

var (
	loggerKey = "logging.Logger"
	fieldsKey = "logging.Fields"
	levelKey  = "logging.Level"
)

// Factory produces a Logger bound to the given context.
//
// The context carries the factory rather than a Logger so that fields and
// level added later in the context chain still reach the backend.
type Factory func(context.Context) Logger

// SetFactory returns a context whose loggers come from f.
func SetFactory(ctx context.Context, f Factory) context.Context {
	return context.WithValue(ctx, &loggerKey, f)
}

// GetFactory returns the Factory in ctx, or nil if none is installed.
func GetFactory(ctx context.Context) Factory {
	if f, ok := ctx.Value(&loggerKey).(Factory); ok {
		return f
	}
	return nil
}

// Get returns the Logger for ctx, or Null if no backend is installed.
func Get(ctx context.Context) Logger {
	if f := GetFactory(ctx); f != nil {
		if l := f(ctx); l != nil {
			return l
		}
	}
	return Null
}
