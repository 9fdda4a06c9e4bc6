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

// Package resolve implements the resolve command, which prints the
// segment a job step should nest under.
package resolve

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/shared"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/config"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/log"
	"github.com/aws-samples/tracing-etl-workloads-otel/pkg/correlation"
)

// Result is the JSON output of the resolve command.
type Result struct {
	shared.JSONResponse
	TraceID   string `json:"trace_id"`
	Step      string `json:"step"`
	SegmentID string `json:"segment_id"`
	Header    string `json:"header"`
}

type options struct {
	traceID string
	step    string
	header  bool
}

// NewCommand creates the resolve command
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use: "resolve",
		Annotations: map[string]string{
			"group": "correlation",
		},
		Short: "Print the parent segment id for a job step",
		Long: `Resolve finds the segment that a downstream service created when the
orchestrator step started it, by reading the orchestrator's X-Ray trace.

The trace id defaults to job.trace_id from the configuration, which in turn
falls back to the Root of _X_AMZN_TRACE_ID.`,
		Example: `  etltrace resolve --trace-id 1-67a1c2d3-4e5f60718293a4b5c6d7e8f9 --step CleaningJob
  etltrace resolve --step CleaningJob --header`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.traceID, "trace-id", "", "Orchestrator X-Ray trace id")
	cmd.Flags().StringVar(&opts.step, "step", "", "State machine step that started the job")
	cmd.Flags().BoolVar(&opts.header, "header", false, "Print the full X-Amzn-Trace-Id header instead of the segment id")

	shared.BindEnv(cmd, "trace-id", config.EnvJobTraceID)
	shared.BindEnv(cmd, "step", config.EnvJobStep)
	shared.MarkRequired(cmd, "trace-id")
	shared.MarkRequired(cmd, "step")

	return cmd
}

func run(cmd *cobra.Command, opts options) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}

	traceID := opts.traceID
	if traceID == "" {
		traceID = cfg.Job.TraceID
	}
	step := opts.step
	if step == "" {
		step = cfg.Job.Step
	}
	if traceID == "" {
		return shared.NewUsageError("no trace id: pass --trace-id or set ETLTRACE_JOB_TRACE_ID", nil)
	}
	if step == "" {
		return shared.NewUsageError("no step: pass --step or set ETLTRACE_JOB_STEP", nil)
	}

	logger := log.WithTrace(shared.NewLogger(cfg.Log, cmd.ErrOrStderr()), traceID, step)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Correlation.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Correlation.Timeout)
		defer cancel()
	}

	correlator, err := shared.NewCorrelator(ctx, cfg, logger)
	if err != nil {
		return err
	}

	segmentID, err := correlator.GetParentSegmentID(ctx, traceID, step)
	if err != nil {
		if shared.GetJSON() {
			_ = shared.EmitJSONError(cmd.OutOrStdout(), "resolve", err)
		}
		return shared.NewCorrelationError("could not resolve parent segment", err)
	}

	header := correlation.ParentHeader(traceID, segmentID).String()

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), Result{
			JSONResponse: shared.NewJSONResponse("resolve"),
			TraceID:      traceID,
			Step:         step,
			SegmentID:    segmentID,
			Header:       header,
		})
	}

	if opts.header {
		fmt.Fprintln(cmd.OutOrStdout(), header)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), segmentID)
	}
	return nil
}
