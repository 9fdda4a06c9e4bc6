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

package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Correlation outcomes recorded by RecordCorrelation.
const (
	OutcomeResolved = "resolved"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// MetricsCollector records correlation and job run metrics.
type MetricsCollector struct {
	meter metric.Meter

	correlationsTotal   metric.Int64Counter
	correlationDuration metric.Float64Histogram
	jobRunsTotal        metric.Int64Counter
	jobDuration         metric.Float64Histogram
}

// NewMetricsCollector creates the instruments on meterProvider.
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("etltrace")

	mc := &MetricsCollector{meter: meter}

	var err error

	mc.correlationsTotal, err = meter.Int64Counter(
		"etltrace_correlation_attempts_total",
		metric.WithDescription("Parent segment lookups by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	mc.correlationDuration, err = meter.Float64Histogram(
		"etltrace_correlation_duration_seconds",
		metric.WithDescription("Time spent resolving the parent segment"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.jobRunsTotal, err = meter.Int64Counter(
		"etltrace_job_runs_total",
		metric.WithDescription("Traced job runs by status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	mc.jobDuration, err = meter.Float64Histogram(
		"etltrace_job_duration_seconds",
		metric.WithDescription("Traced job run duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordCorrelation records one parent lookup. errorType is empty unless
// the outcome is OutcomeFailed.
func (mc *MetricsCollector) RecordCorrelation(ctx context.Context, step, outcome, errorType string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("step", step),
		attribute.String("outcome", outcome),
	}
	if errorType != "" {
		attrs = append(attrs, attribute.String("error_type", errorType))
	}

	mc.correlationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if outcome != OutcomeSkipped {
		mc.correlationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.String("step", step),
		))
	}
}

// RecordJobRun records a finished job run.
func (mc *MetricsCollector) RecordJobRun(ctx context.Context, job, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("status", status),
	)
	mc.jobRunsTotal.Add(ctx, 1, attrs)
	mc.jobDuration.Record(ctx, duration.Seconds(), attrs)
}
