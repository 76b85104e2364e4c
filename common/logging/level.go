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
)

// Level is a logging severity.
type Level int

const (
	Debug Level = iota
	Info
	Warning
	Error
)

// DefaultLevel is used when a context has no explicit level.
const DefaultLevel = Info

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("unknown level %d", int(l))
	}
}

// Set implements flag.Value.
func (l *Level) Set(v string) error {
	switch v {
	case "debug":
		*l = Debug
	case "info":
		*l = Info
	case "warning":
		*l = Warning
	case "error":
		*l = Error
	default:
		return fmt.Errorf("unknown logging level %q", v)
	}
	return nil
}

// SetLevel returns a context with its minimum logging level set.
func SetLevel(ctx context.Context, l Level) context.Context {
	return context.WithValue(ctx, &levelKey, l)
}

// GetLevel returns the context's minimum logging level.
func GetLevel(ctx context.Context) Level {
	if l, ok := ctx.Value(&levelKey).(Level); ok {
		return l
	}
	return DefaultLevel
}

// IsLogging reports whether the context logs at the given level.
func IsLogging(ctx context.Context, l Level) bool {
	return l >= GetLevel(ctx)
}
