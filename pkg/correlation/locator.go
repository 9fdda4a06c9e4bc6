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

package correlation

import (
	"context"
	"errors"

	pkgerrors "github.com/aws-samples/tracing-etl-workloads-otel/pkg/errors"
)

// Locator fetches full traces from a backend.
type Locator struct {
	backend Backend
}

// NewLocator creates a Locator reading from backend.
func NewLocator(backend Backend) *Locator {
	return &Locator{backend: backend}
}

// LocateTrace issues a single read for the trace. It does not retry.
func (l *Locator) LocateTrace(ctx context.Context, traceID string) (*Trace, error) {
	if traceID == "" {
		return nil, &pkgerrors.ValidationError{
			Field:      "trace_id",
			Message:    "trace id is required",
			Suggestion: "Pass the orchestrator's trace id to the job as a parameter",
		}
	}

	trace, err := l.backend.GetTrace(ctx, traceID)
	if err != nil {
		kind := ErrBackendUnavailable
		if errors.Is(err, ErrTraceNotFound) {
			kind = ErrTraceNotFound
		}
		return nil, &LookupError{Kind: kind, TraceID: traceID, Cause: err}
	}
	if trace == nil {
		return nil, &LookupError{Kind: ErrTraceNotFound, TraceID: traceID}
	}
	return trace, nil
}
