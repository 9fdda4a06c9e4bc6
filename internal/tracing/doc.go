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
Package tracing sets up OpenTelemetry for a traced ETL job.

# Overview

A job started by a Step Functions state machine should appear in X-Ray
under the segment the state machine's StartJobRun call produced. This
package supplies the pieces the job needs once that segment id is known:

  - Provider: tracer and meter providers with X-Ray compatible span ids
  - ParentContext: a remote parent built from an X-Amzn-Trace-Id header
  - EnvCarrier and InjectEnv: context propagation to child processes
  - MetricsCollector: correlation and job run metrics
  - CorrelationID: log correlation across the wrapper and its child

# Quick Start

	provider, err := tracing.NewProvider(ctx, tracing.DefaultConfig())
	if err != nil {
	    return err
	}
	defer provider.Shutdown(context.Background())

	parent, err := tracing.ParentContext(ctx, traceID, segmentID)
	if err != nil {
	    parent = ctx
	}
	ctx, span := provider.Tracer("etltrace").Start(parent, "Glue Job Execution")
	defer span.End()

# Metrics

Batch jobs have no scrape endpoint. Metrics are kept in a private
Prometheus registry and written with Provider.WriteTextfile for the node
exporter textfile collector:

  - etltrace_correlation_attempts_total{step,outcome,error_type}
  - etltrace_correlation_duration_seconds{step}
  - etltrace_job_runs_total{job,status}
  - etltrace_job_duration_seconds{job,status}

# Configuration

	tracing:
	  service_name: CleaningJob
	  sampling:
	    enabled: true
	    rate: 0.1
	  exporters:
	    - type: otlp_http
	      endpoint: localhost:4318
*/
package tracing
