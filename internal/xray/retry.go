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
	"fmt"
	"math/rand"
	"time"

	"github.com/aws-samples/tracing-etl-workloads-otel/pkg/correlation"
	pkgerrors "github.com/aws-samples/tracing-etl-workloads-otel/pkg/errors"
)

// RetryConfig configures retry behavior for backend reads.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first
	// (default: 1, no retry)
	MaxAttempts int

	// InitialBackoff is the initial backoff duration (default: 1s)
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration (default: 10s)
	MaxBackoff time.Duration

	// BackoffFactor is the exponential backoff multiplier (default: 2.0)
	BackoffFactor float64

	// RetryNotFound also retries traces X-Ray has not made available yet.
	RetryNotFound bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:    1,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
	}
}

// Validate checks if the retry configuration is valid.
func (c *RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InitialBackoff < 0 {
		return fmt.Errorf("initial_backoff must be non-negative, got %v", c.InitialBackoff)
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff (%v) must be >= initial_backoff (%v)", c.MaxBackoff, c.InitialBackoff)
	}
	if c.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff_factor must be >= 1.0, got %f", c.BackoffFactor)
	}
	return nil
}

// RetryingBackend retries failed reads of another Backend with
// exponential backoff and jitter.
type RetryingBackend struct {
	next   correlation.Backend
	config *RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

// Retrying wraps next with retry behavior. A nil config uses
// DefaultRetryConfig.
func Retrying(next correlation.Backend, config *RetryConfig) *RetryingBackend {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryingBackend{
		next:   next,
		config: config,
		sleep:  sleepContext,
	}
}

// GetTrace implements correlation.Backend.
func (r *RetryingBackend) GetTrace(ctx context.Context, traceID string) (*correlation.Trace, error) {
	var trace *correlation.Trace
	err := r.execute(ctx, func(ctx context.Context) error {
		var err error
		trace, err = r.next.GetTrace(ctx, traceID)
		return err
	})
	return trace, err
}

// SearchSegments implements correlation.Backend. With RetryNotFound set,
// an empty result is retried too since the downstream segment may not be
// indexed yet.
func (r *RetryingBackend) SearchSegments(ctx context.Context, filter correlation.SegmentFilter) ([]correlation.Segment, error) {
	var segments []correlation.Segment
	err := r.execute(ctx, func(ctx context.Context) error {
		var err error
		segments, err = r.next.SearchSegments(ctx, filter)
		if err == nil && len(segments) == 0 && r.config.RetryNotFound {
			return errNoMatches
		}
		return err
	})
	if err == errNoMatches {
		return nil, nil
	}
	return segments, err
}

var errNoMatches = pkgerrors.New("no matching segments")

// execute runs fn until it succeeds, fails with a non-retryable error,
// runs out of attempts or ctx is done.
func (r *RetryingBackend) execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt >= r.config.MaxAttempts || !r.shouldRetry(lastErr) {
			return lastErr
		}
		if err := r.sleep(ctx, calculateBackoff(r.config, attempt)); err != nil {
			return &pkgerrors.TimeoutError{
				Operation: "x-ray retry backoff",
				Cause:     fmt.Errorf("%w (last error: %v)", err, lastErr),
			}
		}
	}
	return lastErr
}

func (r *RetryingBackend) shouldRetry(err error) bool {
	if err == errNoMatches {
		return true
	}
	if pkgerrors.Is(err, correlation.ErrTraceNotFound) {
		return r.config.RetryNotFound
	}
	return pkgerrors.IsRetryable(err)
}

// calculateBackoff returns
// min(InitialBackoff * BackoffFactor^(attempt-1), MaxBackoff) plus up to
// 100ms of jitter.
func calculateBackoff(config *RetryConfig, attempt int) time.Duration {
	base := float64(config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		base *= config.BackoffFactor
	}
	if base > float64(config.MaxBackoff) {
		base = float64(config.MaxBackoff)
	}
	jitter := time.Duration(rand.Int63n(101)) * time.Millisecond
	return time.Duration(base) + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ correlation.Backend = (*RetryingBackend)(nil)
