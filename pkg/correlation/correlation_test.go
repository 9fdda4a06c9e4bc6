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
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/aws-samples/tracing-etl-workloads-otel/pkg/errors"
)

// fakeBackend serves traces from memory and counts calls.
type fakeBackend struct {
	traces      map[string]*Trace
	getErr      error
	searchErr   error
	getCalls    int
	searchCalls int
	lastFilter  SegmentFilter
}

func newFakeBackend(traces ...*Trace) *fakeBackend {
	b := &fakeBackend{traces: make(map[string]*Trace)}
	for _, t := range traces {
		b.traces[t.ID] = t
	}
	return b
}

func (b *fakeBackend) GetTrace(_ context.Context, traceID string) (*Trace, error) {
	b.getCalls++
	if b.getErr != nil {
		return nil, b.getErr
	}
	t, ok := b.traces[traceID]
	if !ok {
		return nil, fmt.Errorf("trace %s: %w", traceID, ErrTraceNotFound)
	}
	return t, nil
}

func (b *fakeBackend) SearchSegments(_ context.Context, filter SegmentFilter) ([]Segment, error) {
	b.searchCalls++
	b.lastFilter = filter
	if b.searchErr != nil {
		return nil, b.searchErr
	}
	var out []Segment
	for _, t := range b.traces {
		if filter.TraceID != "" && t.ID != filter.TraceID {
			continue
		}
		for _, s := range t.Segments {
			if s.RequestID() == filter.RequestID {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func step(name, requestID string, children ...Subsegment) Subsegment {
	s := Subsegment{ID: name + "-id", Name: name, Subsegments: children}
	if requestID != "" {
		s.AWS = &AWSData{RequestID: requestID}
	}
	return s
}

func sdkCall(requestID string) Subsegment {
	return Subsegment{ID: "call-" + requestID, Name: "Glue", Namespace: "aws", AWS: &AWSData{Operation: "StartJobRun", RequestID: requestID}}
}

// t1Trace is the canonical fixture: a StepFunctions segment whose
// CleaningJob step started a job with request id req-123, and the job's
// own segment seg-abc tagged with that request id.
func t1Trace() *Trace {
	return &Trace{
		ID: "T1",
		Segments: []Segment{
			{ID: "sfn-1", Name: "StepFunctions", Subsegments: []Subsegment{step("CleaningJob", "req-123")}},
			{ID: "seg-abc", Name: "Glue", AWS: &AWSData{RequestID: "req-123"}},
		},
	}
}

func TestGetParentSegmentID_EndToEnd(t *testing.T) {
	backend := newFakeBackend(t1Trace())
	c := New(backend)

	id, err := c.GetParentSegmentID(context.Background(), "T1", "CleaningJob")

	require.NoError(t, err)
	assert.Equal(t, "seg-abc", id)
	assert.Equal(t, SegmentFilter{TraceID: "T1", RequestID: "req-123"}, backend.lastFilter)
}

func TestGetParentSegmentID_NoOrchestratorSegmentSkipsSearch(t *testing.T) {
	backend := newFakeBackend(&Trace{
		ID:       "T2",
		Segments: []Segment{{ID: "other", Name: "Lambda", Subsegments: []Subsegment{step("CleaningJob", "req-9")}}},
	})
	c := New(backend)

	_, err := c.GetParentSegmentID(context.Background(), "T2", "CleaningJob")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSegmentNotFound))
	assert.Equal(t, 0, backend.searchCalls)
}

func TestGetParentSegmentID_Idempotent(t *testing.T) {
	c := New(newFakeBackend(t1Trace()))

	first, err := c.GetParentSegmentID(context.Background(), "T1", "CleaningJob")
	require.NoError(t, err)
	second, err := c.GetParentSegmentID(context.Background(), "T1", "CleaningJob")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGetParentSegmentID_ErrorsPropagate(t *testing.T) {
	tests := []struct {
		name    string
		backend func() *fakeBackend
		traceID string
		step    string
		wantErr error
	}{
		{
			name:    "trace not found",
			backend: func() *fakeBackend { return newFakeBackend() },
			traceID: "missing",
			step:    "CleaningJob",
			wantErr: ErrTraceNotFound,
		},
		{
			name: "backend unavailable on read",
			backend: func() *fakeBackend {
				b := newFakeBackend(t1Trace())
				b.getErr = errors.New("connection reset")
				return b
			},
			traceID: "T1",
			step:    "CleaningJob",
			wantErr: ErrBackendUnavailable,
		},
		{
			name:    "step not found",
			backend: func() *fakeBackend { return newFakeBackend(t1Trace()) },
			traceID: "T1",
			step:    "RankingJob",
			wantErr: ErrSubsegmentNotFound,
		},
		{
			name: "request id missing",
			backend: func() *fakeBackend {
				return newFakeBackend(&Trace{
					ID:       "T3",
					Segments: []Segment{{Name: "StepFunctions", Subsegments: []Subsegment{step("CleaningJob", "")}}},
				})
			},
			traceID: "T3",
			step:    "CleaningJob",
			wantErr: ErrRequestIDMissing,
		},
		{
			name: "downstream segment not indexed",
			backend: func() *fakeBackend {
				return newFakeBackend(&Trace{
					ID:       "T4",
					Segments: []Segment{{Name: "StepFunctions", Subsegments: []Subsegment{step("CleaningJob", "req-404")}}},
				})
			},
			traceID: "T4",
			step:    "CleaningJob",
			wantErr: ErrSegmentIDNotFound,
		},
		{
			name: "backend unavailable on search",
			backend: func() *fakeBackend {
				b := newFakeBackend(t1Trace())
				b.searchErr = errors.New("throttled")
				return b
			},
			traceID: "T1",
			step:    "CleaningJob",
			wantErr: ErrBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.backend())

			id, err := c.GetParentSegmentID(context.Background(), tt.traceID, tt.step)

			assert.Empty(t, id)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			var lookupErr *LookupError
			require.True(t, errors.As(err, &lookupErr))
			assert.Equal(t, tt.traceID, lookupErr.TraceID)
		})
	}
}

func TestLocateTrace_EmptyID(t *testing.T) {
	backend := newFakeBackend()

	_, err := NewLocator(backend).LocateTrace(context.Background(), "")

	var validationErr *pkgerrors.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "trace_id", validationErr.Field)
	assert.Equal(t, 0, backend.getCalls)
}

func TestLocateTrace_WrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	backend := newFakeBackend()
	backend.getErr = cause

	_, err := NewLocator(backend).LocateTrace(context.Background(), "T1")

	assert.True(t, errors.Is(err, ErrBackendUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, 1, backend.getCalls, "locator must not retry")
}

func TestMatcher_FindSubsegmentRequestID(t *testing.T) {
	tests := []struct {
		name    string
		trace   *Trace
		want    string
		wantErr error
	}{
		{
			name:  "direct child",
			trace: t1Trace(),
			want:  "req-123",
		},
		{
			name: "nested step",
			trace: &Trace{ID: "T", Segments: []Segment{{
				Name: "StepFunctions",
				Subsegments: []Subsegment{
					step("Parallel", "", step("Branch", "", step("CleaningJob", "req-deep"))),
				},
			}}},
			want: "req-deep",
		},
		{
			name: "request id on sdk call child",
			trace: &Trace{ID: "T", Segments: []Segment{{
				Name:        "StepFunctions",
				Subsegments: []Subsegment{step("CleaningJob", "", sdkCall("req-sdk"))},
			}}},
			want: "req-sdk",
		},
		{
			name: "first orchestrator segment wins",
			trace: &Trace{ID: "T", Segments: []Segment{
				{Name: "StepFunctions", Subsegments: []Subsegment{step("CleaningJob", "req-first")}},
				{Name: "StepFunctions", Subsegments: []Subsegment{step("CleaningJob", "req-second")}},
			}},
			want: "req-first",
		},
		{
			name: "name match is case sensitive",
			trace: &Trace{ID: "T", Segments: []Segment{{
				Name:        "StepFunctions",
				Subsegments: []Subsegment{step("cleaningjob", "req-1")},
			}}},
			wantErr: ErrSubsegmentNotFound,
		},
		{
			name:    "no orchestrator segment",
			trace:   &Trace{ID: "T", Segments: []Segment{{Name: "stepfunctions"}}},
			wantErr: ErrSegmentNotFound,
		},
		{
			name:    "empty trace",
			trace:   &Trace{ID: "T"},
			wantErr: ErrSegmentNotFound,
		},
		{
			name:    "nil trace",
			trace:   nil,
			wantErr: ErrSegmentNotFound,
		},
		{
			name: "step outside orchestrator segment is ignored",
			trace: &Trace{ID: "T", Segments: []Segment{
				{Name: "StepFunctions"},
				{Name: "Lambda", Subsegments: []Subsegment{step("CleaningJob", "req-1")}},
			}},
			wantErr: ErrSubsegmentNotFound,
		},
		{
			name: "aws record without request id",
			trace: &Trace{ID: "T", Segments: []Segment{{
				Name: "StepFunctions",
				Subsegments: []Subsegment{{
					Name: "CleaningJob",
					AWS:  &AWSData{Operation: "StartJobRun"},
				}},
			}}},
			wantErr: ErrRequestIDMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Matcher{}.FindSubsegmentRequestID(tt.trace, "StepFunctions", "CleaningJob")
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatcher_TieBreakIsDeterministic(t *testing.T) {
	trace := &Trace{ID: "T", Segments: []Segment{{
		Name: "StepFunctions",
		Subsegments: []Subsegment{
			step("Retry", "", step("CleaningJob", "req-nested-first")),
			step("CleaningJob", "req-later-sibling"),
		},
	}}}

	for i := 0; i < 10; i++ {
		got, err := Matcher{}.FindSubsegmentRequestID(trace, "StepFunctions", "CleaningJob")
		require.NoError(t, err)
		assert.Equal(t, "req-nested-first", got)
	}
}

func TestMatcher_FieldOrigin(t *testing.T) {
	trace := &Trace{ID: "T", Segments: []Segment{
		{Name: "StepFunctions", Subsegments: []Subsegment{step("CleaningJob", "req-by-name")}},
		{Name: "etl-pipeline", Origin: StateMachineOrigin, Subsegments: []Subsegment{step("CleaningJob", "req-by-origin")}},
	}}

	got, err := Matcher{Field: FieldOrigin}.FindSubsegmentRequestID(trace, StateMachineOrigin, "CleaningJob")

	require.NoError(t, err)
	assert.Equal(t, "req-by-origin", got)
}

func TestParseSegmentField(t *testing.T) {
	f, err := ParseSegmentField("")
	require.NoError(t, err)
	assert.Equal(t, FieldName, f)

	f, err = ParseSegmentField("origin")
	require.NoError(t, err)
	assert.Equal(t, FieldOrigin, f)

	_, err = ParseSegmentField("arn")
	assert.Error(t, err)
}

func TestResolveSegmentID(t *testing.T) {
	t.Run("empty request id makes no call", func(t *testing.T) {
		backend := newFakeBackend(t1Trace())

		_, err := NewResolver(backend).ResolveSegmentID(context.Background(), "T1", "")

		assert.True(t, errors.Is(err, ErrRequestIDMissing))
		assert.Equal(t, 0, backend.searchCalls)
	})

	t.Run("first match wins", func(t *testing.T) {
		trace := t1Trace()
		trace.Segments = append(trace.Segments, Segment{ID: "seg-late", AWS: &AWSData{RequestID: "req-123"}})

		id, err := NewResolver(newFakeBackend(trace)).ResolveSegmentID(context.Background(), "T1", "req-123")

		require.NoError(t, err)
		assert.Equal(t, "seg-abc", id)
	})

	t.Run("first match without id fails", func(t *testing.T) {
		trace := t1Trace()
		trace.Segments = append([]Segment{{AWS: &AWSData{RequestID: "req-123"}}}, trace.Segments...)

		_, err := NewResolver(newFakeBackend(trace)).ResolveSegmentID(context.Background(), "T1", "req-123")

		assert.True(t, errors.Is(err, ErrSegmentIDNotFound), "got %v", err)
	})
}

func TestCorrelator_FixtureTrace(t *testing.T) {
	data, err := os.ReadFile("testdata/stepfunctions_trace.json")
	require.NoError(t, err)
	trace, err := LoadTrace(data)
	require.NoError(t, err)

	c := New(newFakeBackend(trace),
		WithOrchestratorSegment(StateMachineOrigin),
		WithSegmentField(FieldOrigin),
	)

	tests := []struct {
		step string
		want string
	}{
		{step: "CleaningJob", want: "5e6f708192a3b4c5"},
		{step: "RankingJob", want: "6f708192a3b4c5d6"},
	}
	for _, tt := range tests {
		t.Run(tt.step, func(t *testing.T) {
			id, err := c.GetParentSegmentID(context.Background(), trace.ID, tt.step)
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
			assert.True(t, ValidSegmentID(id))
		})
	}
}

func TestLookupError_Classification(t *testing.T) {
	tests := []struct {
		kind      error
		wantType  string
		retryable bool
	}{
		{ErrTraceNotFound, "trace_not_found", false},
		{ErrBackendUnavailable, "backend_unavailable", true},
		{ErrSegmentNotFound, "segment_not_found", false},
		{ErrSubsegmentNotFound, "subsegment_not_found", false},
		{ErrRequestIDMissing, "request_id_missing", false},
		{ErrSegmentIDNotFound, "segment_id_not_found", true},
	}

	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			err := &LookupError{Kind: tt.kind, TraceID: "T1", Target: "CleaningJob"}

			var classifier pkgerrors.ErrorClassifier
			require.True(t, errors.As(error(err), &classifier))
			assert.Equal(t, tt.wantType, classifier.ErrorType())
			assert.Equal(t, tt.retryable, classifier.IsRetryable())
			assert.NotEmpty(t, err.Suggestion())
		})
	}
}

func TestLookupError_Error(t *testing.T) {
	err := &LookupError{
		Kind:    ErrBackendUnavailable,
		TraceID: "T1",
		Target:  "req-123",
		Cause:   errors.New("throttled"),
	}
	assert.Equal(t, `tracing backend unavailable: "req-123" (trace T1): throttled`, err.Error())

	bare := &LookupError{Kind: ErrTraceNotFound}
	assert.Equal(t, "trace not found", bare.Error())
}
