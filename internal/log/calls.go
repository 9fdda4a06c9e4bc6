// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"
	"log/slog"
	"time"
)

// Call describes one outbound call (a backend read, a correlation attempt)
// for logging purposes.
type Call struct {
	// Operation names the call, e.g. "BatchGetTraces" or "resolve_parent".
	Operation string

	// TraceID is the trace the call concerns, if any.
	TraceID string

	// Metadata contains additional attributes logged with the call.
	Metadata map[string]any
}

func (c *Call) attrs(event string) []any {
	attrs := []any{
		EventKey, event,
		"operation", c.Operation,
	}
	if c.TraceID != "" {
		attrs = append(attrs, TraceIDKey, c.TraceID)
	}
	for k, v := range c.Metadata {
		attrs = append(attrs, k, v)
	}
	return attrs
}

// LogCallStart logs a call at debug level before it is made.
func LogCallStart(ctx context.Context, logger *slog.Logger, call *Call) {
	logger.DebugContext(ctx, "call started", call.attrs("call_start")...)
}

// LogCallResult logs the outcome of a call. Failures are logged at warn
// level; the caller decides whether they are fatal.
func LogCallResult(ctx context.Context, logger *slog.Logger, call *Call, elapsed time.Duration, err error) {
	attrs := append(call.attrs("call_end"), DurationKey, elapsed.Milliseconds())

	if err != nil {
		attrs = append(attrs, "error", err.Error())
		logger.WarnContext(ctx, "call failed", attrs...)
		return
	}
	logger.DebugContext(ctx, "call completed", attrs...)
}

// CallLogger wraps functions with start and result logging.
type CallLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewCallLogger creates a CallLogger writing to logger.
func NewCallLogger(logger *slog.Logger) *CallLogger {
	return &CallLogger{
		logger: logger,
		now:    time.Now,
	}
}

// Do runs fn and logs it as call.
func (l *CallLogger) Do(ctx context.Context, call *Call, fn func() error) error {
	start := l.now()
	LogCallStart(ctx, l.logger, call)

	err := fn()

	LogCallResult(ctx, l.logger, call, l.now().Sub(start), err)
	return err
}
