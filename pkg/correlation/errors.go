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
	"fmt"

	pkgerrors "github.com/aws-samples/tracing-etl-workloads-otel/pkg/errors"
)

// Sentinel errors for each way a correlation attempt can fail.
var (
	ErrTraceNotFound      = pkgerrors.New("trace not found")
	ErrBackendUnavailable = pkgerrors.New("tracing backend unavailable")
	ErrSegmentNotFound    = pkgerrors.New("orchestrator segment not found")
	ErrSubsegmentNotFound = pkgerrors.New("step subsegment not found")
	ErrRequestIDMissing   = pkgerrors.New("downstream request id missing")
	ErrSegmentIDNotFound  = pkgerrors.New("downstream segment not found")
)

// LookupError describes a failed correlation step. Kind is one of the
// sentinel errors above; errors.Is matches both Kind and Cause.
type LookupError struct {
	// Kind is the sentinel classifying the failure.
	Kind error

	// TraceID is the trace being correlated.
	TraceID string

	// Target names what was being looked up: a segment name, step name or
	// request id, depending on Kind.
	Target string

	// Cause is the underlying backend error, if any.
	Cause error
}

func (e *LookupError) Error() string {
	msg := e.Kind.Error()
	if e.Target != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.Target)
	}
	if e.TraceID != "" {
		msg = fmt.Sprintf("%s (trace %s)", msg, e.TraceID)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *LookupError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// ErrorType implements pkgerrors.ErrorClassifier.
func (e *LookupError) ErrorType() string {
	switch e.Kind {
	case ErrTraceNotFound:
		return "trace_not_found"
	case ErrBackendUnavailable:
		return "backend_unavailable"
	case ErrSegmentNotFound:
		return "segment_not_found"
	case ErrSubsegmentNotFound:
		return "subsegment_not_found"
	case ErrRequestIDMissing:
		return "request_id_missing"
	case ErrSegmentIDNotFound:
		return "segment_id_not_found"
	default:
		return "unknown"
	}
}

// IsRetryable implements pkgerrors.ErrorClassifier. A missing downstream
// segment may just not be indexed yet.
func (e *LookupError) IsRetryable() bool {
	return e.Kind == ErrBackendUnavailable || e.Kind == ErrSegmentIDNotFound
}

// IsUserVisible implements pkgerrors.UserVisibleError.
func (e *LookupError) IsUserVisible() bool { return true }

// UserMessage implements pkgerrors.UserVisibleError.
func (e *LookupError) UserMessage() string { return e.Error() }

// Suggestion implements pkgerrors.UserVisibleError.
func (e *LookupError) Suggestion() string {
	switch e.Kind {
	case ErrTraceNotFound:
		return "Check the trace id and that tracing is enabled on the state machine; new traces can take a few seconds to appear"
	case ErrBackendUnavailable:
		return "Check AWS credentials, region and the xray:BatchGetTraces permission"
	case ErrSegmentNotFound:
		return "Check correlation.orchestrator_segment and correlation.match_field in the config"
	case ErrSubsegmentNotFound:
		return "The step name must equal the state name in the state machine definition"
	case ErrRequestIDMissing:
		return "The state must start the job through an AWS SDK integration so the call is traced"
	case ErrSegmentIDNotFound:
		return "The job's own segment may not be indexed yet; retry after a short delay"
	default:
		return ""
	}
}

var (
	_ pkgerrors.ErrorClassifier  = (*LookupError)(nil)
	_ pkgerrors.UserVisibleError = (*LookupError)(nil)
)
