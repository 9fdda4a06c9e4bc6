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
	"math"
	"time"
)

// Trace is one distributed execution as returned by the tracing backend.
// Segments keep the backend's ordering.
type Trace struct {
	ID       string
	Segments []Segment
}

// Segment is one service's contribution to a trace.
type Segment struct {
	// ID is the 16 hex digit segment id.
	ID string `json:"id"`

	// Name is the service or resource name (e.g. the state machine name).
	Name string `json:"name"`

	// TraceID is the X-Ray trace id the segment belongs to.
	TraceID string `json:"trace_id,omitempty"`

	// ParentID is set on segments created downstream of a traced call.
	ParentID string `json:"parent_id,omitempty"`

	// Origin identifies the resource type, e.g. "AWS::StepFunctions::StateMachine".
	Origin string `json:"origin,omitempty"`

	// StartTime and EndTime are epoch seconds with sub-second precision.
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time,omitempty"`

	// AWS holds AWS-specific data, including the request id for segments
	// written by AWS services.
	AWS *AWSData `json:"aws,omitempty"`

	Subsegments []Subsegment `json:"subsegments,omitempty"`
}

// Subsegment is a named operation within a segment. Subsegments nest
// without a fixed depth.
type Subsegment struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Namespace string  `json:"namespace,omitempty"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time,omitempty"`

	// AWS is present on subsegments recorded by the AWS SDK and names the
	// downstream call, including the request id the service assigned.
	AWS *AWSData `json:"aws,omitempty"`

	Subsegments []Subsegment `json:"subsegments,omitempty"`
}

// AWSData is the "aws" object of a segment document.
type AWSData struct {
	Operation string `json:"operation,omitempty"`
	Region    string `json:"region,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
}

// SegmentFilter narrows a segment search. TraceID scopes the search to a
// single trace; RequestID must match the segment's aws.request_id.
type SegmentFilter struct {
	TraceID   string
	RequestID string
}

// Backend is the read side of a tracing store.
//
// GetTrace returns an error matching ErrTraceNotFound when the trace does
// not exist. Any other error is treated as the backend being unavailable.
// SearchSegments returns matches in backend order; an empty result is not
// an error.
type Backend interface {
	GetTrace(ctx context.Context, traceID string) (*Trace, error)
	SearchSegments(ctx context.Context, filter SegmentFilter) ([]Segment, error)
}

// ParentResolver resolves the segment a job step should attach its spans to.
type ParentResolver interface {
	GetParentSegmentID(ctx context.Context, traceID, stepName string) (string, error)
}

// RequestID returns the aws.request_id of the segment, or "".
func (s Segment) RequestID() string {
	if s.AWS == nil {
		return ""
	}
	return s.AWS.RequestID
}

// Start returns the segment start time.
func (s Segment) Start() time.Time { return epochToTime(s.StartTime) }

// End returns the segment end time, or the zero time while in progress.
func (s Segment) End() time.Time { return epochToTime(s.EndTime) }

// RequestID returns the aws.request_id of the subsegment, or "".
func (s Subsegment) RequestID() string {
	if s.AWS == nil {
		return ""
	}
	return s.AWS.RequestID
}

// Start returns the subsegment start time.
func (s Subsegment) Start() time.Time { return epochToTime(s.StartTime) }

// End returns the subsegment end time, or the zero time while in progress.
func (s Subsegment) End() time.Time { return epochToTime(s.EndTime) }

func epochToTime(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}
