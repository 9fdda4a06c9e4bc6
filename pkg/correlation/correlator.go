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
)

const (
	// DefaultOrchestratorSegment is the segment name matched when no
	// orchestrator segment is configured.
	DefaultOrchestratorSegment = "StepFunctions"

	// StateMachineOrigin is the origin X-Ray records on Step Functions
	// state machine segments. Use it with FieldOrigin.
	StateMachineOrigin = "AWS::StepFunctions::StateMachine"
)

// Correlator resolves the parent segment for a job step by chaining a
// Locator, a Matcher and a Resolver over one Backend.
type Correlator struct {
	locator             *Locator
	matcher             Matcher
	resolver            *Resolver
	orchestratorSegment string
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithOrchestratorSegment sets the value identifying the orchestrator
// segment.
func WithOrchestratorSegment(v string) Option {
	return func(c *Correlator) {
		c.orchestratorSegment = v
	}
}

// WithSegmentField sets which segment field the orchestrator value is
// compared against.
func WithSegmentField(f SegmentField) Option {
	return func(c *Correlator) {
		c.matcher.Field = f
	}
}

// New creates a Correlator reading from backend.
func New(backend Backend, opts ...Option) *Correlator {
	c := &Correlator{
		locator:             NewLocator(backend),
		matcher:             Matcher{Field: FieldName},
		resolver:            NewResolver(backend),
		orchestratorSegment: DefaultOrchestratorSegment,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetParentSegmentID returns the id of the segment the downstream service
// created when the orchestrator step stepName started it. Errors from each
// stage are returned as-is.
func (c *Correlator) GetParentSegmentID(ctx context.Context, traceID, stepName string) (string, error) {
	trace, err := c.locator.LocateTrace(ctx, traceID)
	if err != nil {
		return "", err
	}

	requestID, err := c.matcher.FindSubsegmentRequestID(trace, c.orchestratorSegment, stepName)
	if err != nil {
		return "", err
	}

	return c.resolver.ResolveSegmentID(ctx, traceID, requestID)
}

var _ ParentResolver = (*Correlator)(nil)
