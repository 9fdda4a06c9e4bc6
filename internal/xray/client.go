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

// Package xray reads traces from AWS X-Ray and exposes them as a
// correlation.Backend.
package xray

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsxray "github.com/aws/aws-sdk-go-v2/service/xray"

	"github.com/aws-samples/tracing-etl-workloads-otel/internal/log"
	"github.com/aws-samples/tracing-etl-workloads-otel/pkg/correlation"
	pkgerrors "github.com/aws-samples/tracing-etl-workloads-otel/pkg/errors"
)

// API is the subset of the X-Ray client used by Backend. *xray.Client
// satisfies it.
type API interface {
	BatchGetTraces(ctx context.Context, params *awsxray.BatchGetTracesInput, optFns ...func(*awsxray.Options)) (*awsxray.BatchGetTracesOutput, error)
}

// Backend implements correlation.Backend over the X-Ray API.
type Backend struct {
	api    API
	logger *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used for trace-level document dumps.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates a Backend over api.
func New(api API, opts ...Option) *Backend {
	b := &Backend{
		api:    api,
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewFromConfig loads AWS configuration and creates a Backend backed by a
// real X-Ray client.
func NewFromConfig(ctx context.Context, opts AWSOptions, backendOpts ...Option) (*Backend, error) {
	cfg, err := LoadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return New(NewAPI(cfg, opts), backendOpts...), nil
}

// NewAPI creates an X-Ray client honouring opts.Endpoint.
func NewAPI(cfg aws.Config, opts AWSOptions) *awsxray.Client {
	return awsxray.NewFromConfig(cfg, func(o *awsxray.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
}

// GetTrace fetches every segment of traceID, following NextToken until
// the trace is complete. Segments whose document cannot be decoded are
// logged and skipped. A trace X-Ray does not return, or lists as
// unprocessed, is reported as correlation.ErrTraceNotFound.
func (b *Backend) GetTrace(ctx context.Context, traceID string) (*correlation.Trace, error) {
	input := &awsxray.BatchGetTracesInput{TraceIds: []string{traceID}}
	trace := &correlation.Trace{ID: traceID}
	found := false

	for page := 1; ; page++ {
		out, err := b.api.BatchGetTraces(ctx, input)
		if err != nil {
			return nil, classifyError("BatchGetTraces", err)
		}
		log.Trace(b.logger, "batch get traces page",
			slog.String(log.TraceIDKey, traceID),
			slog.Int("page", page),
			slog.Int("traces", len(out.Traces)),
		)

		if slices.Contains(out.UnprocessedTraceIds, traceID) {
			return nil, notFound(traceID)
		}

		for _, t := range out.Traces {
			if aws.ToString(t.Id) != traceID {
				continue
			}
			found = true
			for _, s := range t.Segments {
				doc := aws.ToString(s.Document)
				log.Trace(b.logger, "segment document", slog.String("document", doc))

				seg, err := correlation.ParseSegmentDocument([]byte(doc))
				if err != nil {
					b.logger.Warn("skipping undecodable segment document",
						slog.String(log.TraceIDKey, traceID),
						slog.String(log.SegmentIDKey, aws.ToString(s.Id)),
						log.Error(err),
					)
					continue
				}
				if id := aws.ToString(s.Id); id != "" {
					seg.ID = id
				}
				trace.Segments = append(trace.Segments, seg)
			}
		}

		if aws.ToString(out.NextToken) == "" {
			break
		}
		input.NextToken = out.NextToken
	}

	if !found {
		return nil, notFound(traceID)
	}
	return trace, nil
}

// SearchSegments returns the segments of filter.TraceID whose
// aws.request_id equals filter.RequestID, in API order. A trace that is
// not yet available yields no matches rather than an error.
func (b *Backend) SearchSegments(ctx context.Context, filter correlation.SegmentFilter) ([]correlation.Segment, error) {
	if filter.TraceID == "" {
		return nil, &pkgerrors.ValidationError{
			Field:   "trace_id",
			Message: "x-ray segment search must be scoped to a trace",
		}
	}

	trace, err := b.GetTrace(ctx, filter.TraceID)
	if err != nil {
		if pkgerrors.Is(err, correlation.ErrTraceNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var matches []correlation.Segment
	for _, s := range trace.Segments {
		if filter.RequestID != "" && s.RequestID() == filter.RequestID {
			matches = append(matches, s)
		}
	}
	return matches, nil
}

func notFound(traceID string) error {
	return fmt.Errorf("%w: %w", correlation.ErrTraceNotFound, &pkgerrors.NotFoundError{Resource: "trace", ID: traceID})
}

var _ correlation.Backend = (*Backend)(nil)
