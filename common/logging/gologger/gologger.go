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

// Package gologger is a console logging backend built on go-logging.
//
// Typical use, near main:
//
//	ctx = gologger.StdConfig.Use(ctx)
package gologger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mysticetus/gcpcore/common/logging"

	gol "github.com/op/go-logging"
)

// StdFormat is the default message format: severity initial, timestamp, pid,
// source location, then the message.
const StdFormat = `[%{level:.1s}%{time:2006-01-02T15:04:05.000000Z07:00} %{pid} %{shortfile}] %{message}`

// StdFormatWithColor is StdFormat with terminal colors by severity.
const StdFormatWithColor = `%{color}[%{level:.1s}%{time:2006-01-02T15:04:05.000000Z07:00} %{pid} %{shortfile}]%{color:reset} %{message}`

// StdConfig writes StdFormat lines to stderr.
var StdConfig = LoggerConfig{Out: os.Stderr, Format: StdFormat}

// LoggerConfig owns one configured go-logging logger.
type LoggerConfig struct {
	Out    io.Writer // defaults to os.Stderr
	Format string    // defaults to StdFormat

	once   sync.Once
	logger *wrappedLogger
}

// NewLogger returns a Logger bound to ctx.
//
// A nil ctx gives an unfiltered logger with no fields, useful for logging
// before a real context exists.
func (lc *LoggerConfig) NewLogger(ctx context.Context) logging.Logger {
	lc.once.Do(func() {
		out := lc.Out
		if out == nil {
			out = os.Stderr
		}
		format := lc.Format
		if format == "" {
			format = StdFormat
		}

		backend := gol.NewLogBackend(out, "", 0)
		formatted := gol.NewBackendFormatter(backend, gol.MustStringFormatter(format))
		leveled := gol.AddModuleLevel(formatted)
		leveled.SetLevel(gol.DEBUG, "")

		l := gol.MustGetLogger("gcpcore")
		l.SetBackend(leveled)
		lc.logger = &wrappedLogger{l: l}
	})
	return &loggerImpl{l: lc.logger, ctx: ctx}
}

// Use installs this config's logger into the context.
func (lc *LoggerConfig) Use(ctx context.Context) context.Context {
	return logging.SetFactory(ctx, func(c context.Context) logging.Logger {
		return lc.NewLogger(c)
	})
}

// wrappedLogger serializes access so per-call calldepth adjustment is safe.
type wrappedLogger struct {
	mu sync.Mutex
	l  *gol.Logger
}

type loggerImpl struct {
	l   *wrappedLogger
	ctx context.Context
}

func (li *loggerImpl) Debugf(format string, args ...any) {
	li.LogCall(logging.Debug, 1, format, args)
}

func (li *loggerImpl) Infof(format string, args ...any) {
	li.LogCall(logging.Info, 1, format, args)
}

func (li *loggerImpl) Warningf(format string, args ...any) {
	li.LogCall(logging.Warning, 1, format, args)
}

func (li *loggerImpl) Errorf(format string, args ...any) {
	li.LogCall(logging.Error, 1, format, args)
}

func (li *loggerImpl) LogCall(l logging.Level, calldepth int, format string, args []any) {
	if li.ctx != nil && !logging.IsLogging(li.ctx, l) {
		return
	}

	text := fmt.Sprintf(format, args...)
	if li.ctx != nil {
		if fields := logging.GetFields(li.ctx); len(fields) > 0 {
			text = fmt.Sprintf("%-44s %s", text, fields)
		}
	}

	li.l.mu.Lock()
	defer li.l.mu.Unlock()
	li.l.l.ExtraCalldepth = calldepth + 1
	switch l {
	case logging.Debug:
		li.l.l.Debug(text)
	case logging.Info:
		li.l.l.Info(text)
	case logging.Warning:
		li.l.l.Warning(text)
	default:
		li.l.l.Error(text)
	}
}
