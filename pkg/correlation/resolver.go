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

// Resolver finds the segment a downstream service wrote for its own
// execution, keyed by the request id the caller recorded.
type Resolver struct {
	backend Backend
}

// NewResolver creates a Resolver searching backend.
func NewResolver(backend Backend) *Resolver {
	return &Resolver{backend: backend}
}

// ResolveSegmentID returns the id of the first segment in traceID whose
// aws.request_id equals requestID. Only the first match is used: if it
// has no id the lookup fails with ErrSegmentIDNotFound. The backend index
// is eventually consistent, so a segment written moments ago may not be
// found yet.
func (r *Resolver) ResolveSegmentID(ctx context.Context, traceID, requestID string) (string, error) {
	if requestID == "" {
		return "", &LookupError{Kind: ErrRequestIDMissing, TraceID: traceID}
	}

	segments, err := r.backend.SearchSegments(ctx, SegmentFilter{TraceID: traceID, RequestID: requestID})
	if err != nil {
		return "", &LookupError{Kind: ErrBackendUnavailable, TraceID: traceID, Target: requestID, Cause: err}
	}

	if len(segments) == 0 || segments[0].ID == "" {
		return "", &LookupError{Kind: ErrSegmentIDNotFound, TraceID: traceID, Target: requestID}
	}
	return segments[0].ID, nil
}
