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

package xray

import (
	"context"
	"log/slog"

	"github.com/aws-samples/tracing-etl-workloads-otel/internal/log"
	"github.com/aws-samples/tracing-etl-workloads-otel/pkg/correlation"
)

// LoggedBackend logs every call to another Backend.
type LoggedBackend struct {
	next  correlation.Backend
	calls *log.CallLogger
}

// Logged wraps next with call logging.
func Logged(next correlation.Backend, logger *slog.Logger) *LoggedBackend {
	return &LoggedBackend{
		next:  next,
		calls: log.NewCallLogger(log.WithComponent(logger, "xray")),
	}
}

// GetTrace implements correlation.Backend.
func (l *LoggedBackend) GetTrace(ctx context.Context, traceID string) (*correlation.Trace, error) {
	var trace *correlation.Trace
	call := &log.Call{Operation: "get_trace", TraceID: traceID}
	err := l.calls.Do(ctx, call, func() error {
		var err error
		trace, err = l.next.GetTrace(ctx, traceID)
		if trace != nil {
			call.Metadata = map[string]any{"segments": len(trace.Segments)}
		}
		return err
	})
	return trace, err
}

// SearchSegments implements correlation.Backend.
func (l *LoggedBackend) SearchSegments(ctx context.Context, filter correlation.SegmentFilter) ([]correlation.Segment, error) {
	var segments []correlation.Segment
	call := &log.Call{
		Operation: "search_segments",
		TraceID:   filter.TraceID,
		Metadata:  map[string]any{log.RequestIDKey: filter.RequestID},
	}
	err := l.calls.Do(ctx, call, func() error {
		var err error
		segments, err = l.next.SearchSegments(ctx, filter)
		call.Metadata["matches"] = len(segments)
		return err
	})
	return segments, err
}

var _ correlation.Backend = (*LoggedBackend)(nil)
