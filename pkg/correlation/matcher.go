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
)

// SegmentField selects which segment field identifies the orchestrator.
type SegmentField string

const (
	// FieldName matches the segment name, e.g. the state machine name.
	FieldName SegmentField = "name"

	// FieldOrigin matches the segment origin, e.g.
	// "AWS::StepFunctions::StateMachine".
	FieldOrigin SegmentField = "origin"
)

// ParseSegmentField converts a config value into a SegmentField.
// An empty value selects FieldName.
func ParseSegmentField(s string) (SegmentField, error) {
	switch SegmentField(s) {
	case "", FieldName:
		return FieldName, nil
	case FieldOrigin:
		return FieldOrigin, nil
	default:
		return "", fmt.Errorf("unknown segment field %q (want %q or %q)", s, FieldName, FieldOrigin)
	}
}

func (f SegmentField) value(s *Segment) string {
	if f == FieldOrigin {
		return s.Origin
	}
	return s.Name
}

// Matcher walks a trace to find the request id of the downstream call made
// by one orchestrator step. The zero value matches segments by name.
// All comparisons are exact and case-sensitive.
type Matcher struct {
	Field SegmentField
}

// FindOrchestratorSegment returns the first segment whose selected field
// equals orchestratorSegment.
func (m Matcher) FindOrchestratorSegment(trace *Trace, orchestratorSegment string) (*Segment, error) {
	if trace != nil {
		for i := range trace.Segments {
			if m.Field.value(&trace.Segments[i]) == orchestratorSegment {
				return &trace.Segments[i], nil
			}
		}
	}
	return nil, &LookupError{Kind: ErrSegmentNotFound, TraceID: traceID(trace), Target: orchestratorSegment}
}

// FindStepSubsegment returns the first subsegment of seg, at any depth,
// named stepName. Ties are broken by depth-first pre-order.
func (m Matcher) FindStepSubsegment(seg *Segment, stepName string) (*Subsegment, bool) {
	return findFirst(seg.Subsegments, subsegmentChildren, func(s *Subsegment) bool {
		return s.Name == stepName
	})
}

// FindSubsegmentRequestID returns the downstream request id recorded under
// the step subsegment. The step's own aws record is used if it carries a
// request id; otherwise the first descendant that does.
func (m Matcher) FindSubsegmentRequestID(trace *Trace, orchestratorSegment, stepName string) (string, error) {
	seg, err := m.FindOrchestratorSegment(trace, orchestratorSegment)
	if err != nil {
		return "", err
	}

	step, ok := m.FindStepSubsegment(seg, stepName)
	if !ok {
		return "", &LookupError{Kind: ErrSubsegmentNotFound, TraceID: traceID(trace), Target: stepName}
	}

	if id := step.RequestID(); id != "" {
		return id, nil
	}
	call, ok := findFirst(step.Subsegments, subsegmentChildren, func(s *Subsegment) bool {
		return s.RequestID() != ""
	})
	if !ok {
		return "", &LookupError{Kind: ErrRequestIDMissing, TraceID: traceID(trace), Target: stepName}
	}
	return call.RequestID(), nil
}

func traceID(t *Trace) string {
	if t == nil {
		return ""
	}
	return t.ID
}
