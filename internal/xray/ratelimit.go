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

	"golang.org/x/time/rate"

	"github.com/aws-samples/tracing-etl-workloads-otel/pkg/correlation"
)

// RateLimiter blocks until a call is allowed.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// RateLimitedBackend throttles calls to another Backend. X-Ray limits
// BatchGetTraces per account, and many jobs starting together share it.
type RateLimitedBackend struct {
	next    correlation.Backend
	limiter RateLimiter
}

// RateLimited wraps next so it makes at most perSecond calls per second
// with the given burst. A non-positive perSecond disables limiting.
func RateLimited(next correlation.Backend, perSecond float64, burst int) correlation.Backend {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedBackend{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// GetTrace implements correlation.Backend.
func (r *RateLimitedBackend) GetTrace(ctx context.Context, traceID string) (*correlation.Trace, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.GetTrace(ctx, traceID)
}

// SearchSegments implements correlation.Backend.
func (r *RateLimitedBackend) SearchSegments(ctx context.Context, filter correlation.SegmentFilter) ([]correlation.Segment, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.SearchSegments(ctx, filter)
}

var _ correlation.Backend = (*RateLimitedBackend)(nil)
