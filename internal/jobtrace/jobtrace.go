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

// Package jobtrace starts the span of a batch job under the orchestrator
// segment that launched it.
//
// Correlation is best effort. A job whose parent segment cannot be
// resolved still runs and is traced, only as a new root trace.
package jobtrace

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aws-samples/tracing-etl-workloads-otel/internal/log"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/tracing"
	"github.com/aws-samples/tracing-etl-workloads-otel/pkg/correlation"
	pkgerrors "github.com/aws-samples/tracing-etl-workloads-otel/pkg/errors"
)

// SpanName is the name of the span covering a job run.
const SpanName = "Glue Job Execution"

// Span attribute keys.
const (
	AttrJobName        = attribute.Key("job_name")
	AttrStep           = attribute.Key("etltrace.step")
	AttrParentResolved = attribute.Key("etltrace.parent_resolved")
	AttrParentSegment  = attribute.Key("etltrace.parent_segment_id")
	AttrCorrelationID  = attribute.Key("etltrace.correlation_id")
)

// Job identifies a job run and the orchestrator step that started it.
type Job struct {
	// TraceID is the orchestrator's X-Ray trace id. Empty skips
	// correlation.
	TraceID string

	// Step is the state machine step name that started the job.
	Step string

	// Name is the job name, used as the job_name attribute.
	Name string
}

// ResolverFunc adapts a function to correlation.ParentResolver.
type ResolverFunc func(ctx context.Context, traceID, stepName string) (string, error)

// GetParentSegmentID calls f.
func (f ResolverFunc) GetParentSegmentID(ctx context.Context, traceID, stepName string) (string, error) {
	return f(ctx, traceID, stepName)
}

// Starter starts job spans.
type Starter struct {
	resolver correlation.ParentResolver
	tracer   trace.Tracer
	metrics  *tracing.MetricsCollector
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

// Option configures a Starter.
type Option func(*Starter)

// WithMetrics records correlation and run metrics on mc.
func WithMetrics(mc *tracing.MetricsCollector) Option {
	return func(s *Starter) {
		s.metrics = mc
	}
}

// WithLogger sets the logger used for correlation warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Starter) {
		s.logger = logger
	}
}

// WithTimeout bounds the parent lookup. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) Option {
	return func(s *Starter) {
		s.timeout = d
	}
}

// NewStarter creates a Starter that resolves parents through resolver and
// starts spans on tracer.
func NewStarter(resolver correlation.ParentResolver, tracer trace.Tracer, opts ...Option) *Starter {
	s := &Starter{
		resolver: resolver,
		tracer:   tracer,
		logger:   log.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run is a started job span.
type Run struct {
	// ParentID is the resolved parent segment id, or "".
	ParentID string

	// Err is the correlation error when the parent was not resolved.
	Err error

	span    trace.Span
	job     Job
	start   time.Time
	now     func() time.Time
	metrics *tracing.MetricsCollector
}

// Span returns the job span.
func (r *Run) Span() trace.Span {
	return r.span
}

// Start resolves the parent segment for job and starts the job span. It
// never fails: on any lookup error a warning is logged and the span
// starts as a root. The returned context carries the span.
func (s *Starter) Start(ctx context.Context, job Job) (context.Context, *Run) {
	logger := log.WithJobContext(log.WithTrace(s.logger, job.TraceID, job.Step), job.Name)
	if id := tracing.FromContext(ctx); id != "" {
		logger = log.WithCorrelationID(logger, id.String())
	}

	parentCtx, parentID, err := s.resolveParent(ctx, job, logger)

	attrs := []attribute.KeyValue{
		AttrJobName.String(job.Name),
		AttrStep.String(job.Step),
		AttrParentResolved.Bool(parentID != ""),
	}
	if parentID != "" {
		attrs = append(attrs, AttrParentSegment.String(parentID))
	}
	if id := tracing.FromContext(ctx); id != "" {
		attrs = append(attrs, AttrCorrelationID.String(id.String()))
	}

	spanCtx, span := s.tracer.Start(parentCtx, SpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)

	return spanCtx, &Run{
		ParentID: parentID,
		Err:      err,
		span:     span,
		job:      job,
		start:    s.now(),
		now:      s.now,
		metrics:  s.metrics,
	}
}

func (s *Starter) resolveParent(ctx context.Context, job Job, logger *slog.Logger) (context.Context, string, error) {
	if job.TraceID == "" {
		logger.Info("no orchestrator trace id, starting root trace")
		s.recordCorrelation(ctx, job.Step, tracing.OutcomeSkipped, nil, 0)
		return ctx, "", nil
	}

	lookupCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := s.now()
	parentID, err := s.resolver.GetParentSegmentID(lookupCtx, job.TraceID, job.Step)
	elapsed := s.now().Sub(start)
	if err != nil {
		logger.Warn("could not resolve parent segment, starting root trace",
			log.Error(err),
			slog.String("error_type", pkgerrors.TypeOf(err)),
			log.Duration("lookup", elapsed.Milliseconds()),
		)
		s.recordCorrelation(ctx, job.Step, tracing.OutcomeFailed, err, elapsed)
		return ctx, "", err
	}

	parentCtx, err := tracing.ParentContext(ctx, job.TraceID, parentID)
	if err != nil {
		logger.Warn("resolved parent segment is not usable, starting root trace",
			slog.String(log.SegmentIDKey, parentID),
			log.Error(err),
		)
		s.recordCorrelation(ctx, job.Step, tracing.OutcomeFailed, err, elapsed)
		return ctx, "", err
	}

	logger.Debug("resolved parent segment",
		slog.String(log.SegmentIDKey, parentID),
		log.Duration("lookup", elapsed.Milliseconds()),
	)
	s.recordCorrelation(ctx, job.Step, tracing.OutcomeResolved, nil, elapsed)
	return parentCtx, parentID, nil
}

func (s *Starter) recordCorrelation(ctx context.Context, step, outcome string, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	errorType := ""
	if err != nil {
		errorType = pkgerrors.TypeOf(err)
	}
	s.metrics.RecordCorrelation(ctx, step, outcome, errorType, elapsed)
}

// Finish ends the job span. A non-nil err is recorded on the span and
// marks it as failed.
func (r *Run) Finish(err error) {
	status := "ok"
	if err != nil {
		status = "error"
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
	} else {
		r.span.SetStatus(codes.Ok, "")
	}
	r.span.End()

	if r.metrics != nil {
		r.metrics.RecordJobRun(context.Background(), r.job.Name, status, r.now().Sub(r.start))
	}
}
