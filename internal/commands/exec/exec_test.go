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

package exec

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aws-samples/tracing-etl-workloads-otel/internal/cli"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/shared"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/config"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/jobtrace"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/tracing"
	"github.com/aws-samples/tracing-etl-workloads-otel/pkg/correlation"
)

const fixtureTraceID = "1-67a1c2d3-4e5f60718293a4b5c6d7e8f9"

type fixtureBackend struct {
	trace *correlation.Trace
}

func (f *fixtureBackend) GetTrace(ctx context.Context, traceID string) (*correlation.Trace, error) {
	if traceID != f.trace.ID {
		return nil, correlation.ErrTraceNotFound
	}
	return f.trace, nil
}

func (f *fixtureBackend) SearchSegments(ctx context.Context, filter correlation.SegmentFilter) ([]correlation.Segment, error) {
	var out []correlation.Segment
	for _, seg := range f.trace.Segments {
		if seg.RequestID() == filter.RequestID {
			out = append(out, seg)
		}
	}
	return out, nil
}

// spanRecorder keeps exported spans across provider shutdown, which
// would otherwise reset the in-memory exporter before the test reads it.
type spanRecorder struct {
	*tracetest.InMemoryExporter
}

func (spanRecorder) Shutdown(context.Context) error { return nil }

type env struct {
	config  string
	metrics string
	spans   spanRecorder
}

func setup(t *testing.T) *env {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}

	data, err := os.ReadFile("../../../pkg/correlation/testdata/stepfunctions_trace.json")
	require.NoError(t, err)
	trace, err := correlation.LoadTrace(data)
	require.NoError(t, err)

	t.Cleanup(shared.SetBackendFactoryForTest(func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (correlation.Backend, error) {
		return &fixtureBackend{trace: trace}, nil
	}))

	for _, name := range []string{"ETLTRACE_JOB_TRACE_ID", "ETLTRACE_JOB_STEP", "ETLTRACE_JOB_NAME", "_X_AMZN_TRACE_ID", tracing.EnvCorrelationID} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}

	e := &env{spans: spanRecorder{tracetest.NewInMemoryExporter()}}
	providerOptions = []sdktrace.TracerProviderOption{sdktrace.WithSyncer(e.spans)}
	t.Cleanup(func() { providerOptions = nil })

	dir := t.TempDir()
	e.config = filepath.Join(dir, "config.yaml")
	e.metrics = filepath.Join(dir, "etltrace.prom")
	require.NoError(t, os.WriteFile(e.config, []byte(`
aws:
  region: us-east-1
tracing:
  exporters:
    - type: none
log:
  level: error
`), 0o600))
	return e
}

func (e *env) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := cli.NewRootCommand()
	root.AddCommand(NewCommand())

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", e.config}, args...))

	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (e *env) jobSpan(t *testing.T) tracetest.SpanStub {
	t.Helper()
	spans := e.spans.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, jobtrace.SpanName, spans[0].Name)
	return spans[0]
}

func attrValue(s tracetest.SpanStub, key attribute.Key) attribute.Value {
	for _, kv := range s.Attributes {
		if kv.Key == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestExec_NestsJobUnderStepSegment(t *testing.T) {
	e := setup(t)

	stdout, err := e.execute(t, "exec",
		"--trace-id", fixtureTraceID,
		"--step", "CleaningJob",
		"--job-name", "cleaning-job",
		"--metrics-textfile", e.metrics,
		"--", "/bin/sh", "-c", `printf '%s|%s' "$_X_AMZN_TRACE_ID" "$ETLTRACE_CORRELATION_ID"`)
	require.NoError(t, err)

	span := e.jobSpan(t)
	assert.Equal(t, "5e6f708192a3b4c5", span.Parent.SpanID().String())
	assert.Equal(t, "67a1c2d34e5f60718293a4b5c6d7e8f9", span.SpanContext.TraceID().String())
	assert.Equal(t, "cleaning-job", attrValue(span, jobtrace.AttrJobName).AsString())
	assert.True(t, attrValue(span, jobtrace.AttrParentResolved).AsBool())
	assert.Equal(t, codes.Ok, span.Status.Code)

	// The child sees the job span, not the orchestrator segment, as parent.
	header, correlationID, ok := strings.Cut(stdout, "|")
	require.True(t, ok)
	parsed, err := correlation.ParseTraceHeader(header)
	require.NoError(t, err)
	assert.Equal(t, fixtureTraceID, parsed.Root)
	assert.Equal(t, span.SpanContext.SpanID().String(), parsed.Parent)
	assert.True(t, tracing.CorrelationID(correlationID).IsValid())
	assert.Equal(t, correlationID, attrValue(span, jobtrace.AttrCorrelationID).AsString())

	metrics, err := os.ReadFile(e.metrics)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "etltrace_job_runs_total")
}

func TestExec_PropagatesExitCode(t *testing.T) {
	e := setup(t)

	_, err := e.execute(t, "exec", "--trace-id", fixtureTraceID, "--step", "CleaningJob", "--", "/bin/sh", "-c", "exit 3")
	require.Error(t, err)
	assert.Equal(t, 3, shared.ExitCodeFor(err))

	var buf bytes.Buffer
	shared.WriteError(&buf, err)
	assert.Empty(t, buf.String())

	span := e.jobSpan(t)
	assert.Equal(t, codes.Error, span.Status.Code)
	assert.Contains(t, span.Status.Description, "status 3")
}

func TestExec_UnresolvedParentStillRuns(t *testing.T) {
	e := setup(t)

	stdout, err := e.execute(t, "exec", "--trace-id", fixtureTraceID, "--step", "LoadingJob", "--", "/bin/sh", "-c", "echo ran")
	require.NoError(t, err)
	assert.Equal(t, "ran\n", stdout)

	span := e.jobSpan(t)
	assert.False(t, span.Parent.IsValid())
	assert.False(t, attrValue(span, jobtrace.AttrParentResolved).AsBool())
}

func TestExec_NoTraceID(t *testing.T) {
	e := setup(t)

	_, err := e.execute(t, "exec", "--", "/bin/sh", "-c", "true")
	require.NoError(t, err)

	span := e.jobSpan(t)
	assert.False(t, span.Parent.IsValid())
	assert.Equal(t, "sh", attrValue(span, jobtrace.AttrJobName).AsString())
}

func TestExec_CommandNotFound(t *testing.T) {
	e := setup(t)

	_, err := e.execute(t, "exec", "--", "/nonexistent/etl-job")
	require.Error(t, err)
	assert.Equal(t, shared.ExitFailed, shared.ExitCodeFor(err))
	assert.Equal(t, codes.Error, e.jobSpan(t).Status.Code)
}

func TestExec_TraceIDWithoutStep(t *testing.T) {
	e := setup(t)

	_, err := e.execute(t, "exec", "--trace-id", fixtureTraceID, "--", "/bin/sh", "-c", "true")
	require.Error(t, err)
	assert.Equal(t, shared.ExitUsage, shared.ExitCodeFor(err))
}

func TestApplyOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Tracing.ServiceName = "etltrace"

	applyOptions(cfg, options{step: "CleaningJob"}, []string{"/opt/jobs/clean.py"})
	assert.Equal(t, "clean.py", cfg.Job.Name)
	assert.Equal(t, "clean.py", cfg.Tracing.ServiceName)

	cfg = config.Default()
	cfg.Tracing.ServiceName = "custom-service"
	applyOptions(cfg, options{jobName: "cleaning-job"}, []string{"clean"})
	assert.Equal(t, "cleaning-job", cfg.Job.Name)
	assert.Equal(t, "custom-service", cfg.Tracing.ServiceName)
}
