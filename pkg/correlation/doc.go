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

/*
Package correlation resolves where a batch job's spans belong inside an
orchestrator's existing X-Ray trace.

A Step Functions execution records one segment for the state machine, with
one subsegment per state. When a state starts a Glue job, the AWS SDK call
that started it is recorded as a nested subsegment carrying the request id
that Glue assigned. Glue then writes its own segment tagged with the same
request id. Resolving that segment's id gives the job a parent to attach
its spans to.

# Resolution

Resolution runs three steps in order:

	Locator   trace id            -> *Trace
	Matcher   trace + step name   -> downstream request id
	Resolver  request id          -> downstream segment id

Correlator composes them:

	c := correlation.New(backend,
	    correlation.WithOrchestratorSegment("AWS::StepFunctions::StateMachine"),
	    correlation.WithSegmentField(correlation.FieldOrigin),
	)
	parentID, err := c.GetParentSegmentID(ctx, traceID, "CleaningJob")

# Errors

Every lookup failure is a *LookupError matching one of the sentinel errors
(ErrTraceNotFound, ErrBackendUnavailable, ErrSegmentNotFound,
ErrSubsegmentNotFound, ErrRequestIDMissing, ErrSegmentIDNotFound) via
errors.Is. An empty trace id is rejected with a validation error.
Nothing is retried, logged or swallowed here. Correlation only improves
trace nesting, so callers normally log the error and continue without a
parent.

# Backends

Backend abstracts the tracing store. The X-Ray implementation lives in
internal/xray; tests use in-memory fakes built from segment documents
(see ParseSegmentDocument).
*/
package correlation
