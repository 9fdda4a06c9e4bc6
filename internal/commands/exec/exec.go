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

// Package exec implements the exec command, which runs a batch job under
// a span nested in the orchestrator's trace.
package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	osexec "os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/shared"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/config"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/jobtrace"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/log"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/tracing"
	"github.com/aws-samples/tracing-etl-workloads-otel/pkg/correlation"
)

// waitDelay is how long a child gets to exit after SIGTERM.
const waitDelay = 10 * time.Second

// providerOptions are added to the tracer provider. Tests use it to
// capture spans.
var providerOptions []sdktrace.TracerProviderOption

type options struct {
	traceID string
	step    string
	jobName string
	metrics string
}

// NewCommand creates the exec command
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use: "exec [flags] -- command [args...]",
		Annotations: map[string]string{
			"group": "correlation",
		},
		Short: "Run a job under a span nested in the orchestrator trace",
		Long: `Exec resolves the orchestrator segment that started this job, starts a
"Glue Job Execution" span under it and runs the command. The span context
is passed to the command in TRACEPARENT and _X_AMZN_TRACE_ID so spans it
creates join the same trace.

If the parent cannot be resolved a warning is logged and the job runs under
a new root trace. The command's exit status becomes etltrace's exit status.`,
		Example: `  etltrace exec --step CleaningJob --job-name cleaning-job -- python3 clean.py
  ETLTRACE_TRACING_OTLP_ENDPOINT=adot-collector etltrace exec --step RankingJob -- ./rank`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&opts.traceID, "trace-id", "", "Orchestrator X-Ray trace id (default: job.trace_id or _X_AMZN_TRACE_ID)")
	cmd.Flags().StringVar(&opts.step, "step", "", "State machine step that started the job")
	cmd.Flags().StringVar(&opts.jobName, "job-name", "", "Job name recorded on the span (default: job.name or the command name)")
	cmd.Flags().StringVar(&opts.metrics, "metrics-textfile", "", "Write run metrics to this file for the node exporter")

	shared.BindEnv(cmd, "trace-id", config.EnvJobTraceID)
	shared.BindEnv(cmd, "step", config.EnvJobStep)
	shared.BindEnv(cmd, "job-name", config.EnvJobName)
	shared.BindEnv(cmd, "metrics-textfile", config.EnvJobMetricsTextfile)

	return cmd
}

func run(cmd *cobra.Command, opts options, args []string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	applyOptions(cfg, opts, args)

	if cfg.Job.Step == "" && cfg.Job.TraceID != "" {
		return shared.NewUsageError("no step: pass --step or set ETLTRACE_JOB_STEP", nil)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	correlationID := tracing.CorrelationIDFromEnv()
	ctx = tracing.ToContext(ctx, correlationID)
	logger := log.WithCorrelationID(shared.NewLogger(cfg.Log, cmd.ErrOrStderr()), correlationID.String())

	provider, err := tracing.NewProvider(ctx, cfg.TracingConfig(), providerOptions...)
	if err != nil {
		return shared.NewConfigError("failed to start tracing", err)
	}
	defer shutdown(provider, cfg, logger)

	starter := jobtrace.NewStarter(
		resolverFor(ctx, cfg, logger),
		provider.Tracer("etltrace"),
		jobtrace.WithMetrics(provider.MetricsCollector()),
		jobtrace.WithLogger(logger),
		jobtrace.WithTimeout(cfg.Correlation.Timeout),
	)

	spanCtx, jobRun := starter.Start(ctx, jobtrace.Job{
		TraceID: cfg.Job.TraceID,
		Step:    cfg.Job.Step,
		Name:    cfg.Job.Name,
	})

	code, jobErr := runChild(spanCtx, cmd, args, correlationID)
	jobRun.Finish(jobErr)

	if jobErr != nil && code == 0 {
		logger.Error("failed to run command", log.Error(jobErr))
		return &shared.ExitError{Code: shared.ExitFailed, Message: "failed to run command", Cause: jobErr}
	}
	if code != 0 {
		logger.Info("command failed", slog.Int("exit_code", code))
		return shared.NewChildExitError(code, jobErr)
	}
	return nil
}

// applyOptions lets flags override the job section of the configuration.
func applyOptions(cfg *config.Config, opts options, args []string) {
	defaultService := cfg.Tracing.ServiceName == "etltrace" || cfg.Tracing.ServiceName == cfg.Job.Name

	if opts.traceID != "" {
		cfg.Job.TraceID = opts.traceID
	}
	if opts.step != "" {
		cfg.Job.Step = opts.step
	}
	if opts.jobName != "" {
		cfg.Job.Name = opts.jobName
	}
	if cfg.Job.Name == "" {
		cfg.Job.Name = filepath.Base(args[0])
	}
	if opts.metrics != "" {
		cfg.Job.MetricsTextfile = opts.metrics
	}
	if defaultService {
		cfg.Tracing.ServiceName = cfg.Job.Name
	}
}

// resolverFor builds the correlator. A backend that cannot be configured
// turns into a resolver that always fails, so the job still runs.
func resolverFor(ctx context.Context, cfg *config.Config, logger *slog.Logger) correlation.ParentResolver {
	if cfg.Job.TraceID == "" {
		return jobtrace.ResolverFunc(func(context.Context, string, string) (string, error) {
			return "", errors.New("no trace id")
		})
	}
	correlator, err := shared.NewCorrelator(ctx, cfg, logger)
	if err != nil {
		return jobtrace.ResolverFunc(func(context.Context, string, string) (string, error) {
			return "", err
		})
	}
	return correlator
}

// runChild runs the command with the span context in its environment and
// returns its exit status.
func runChild(ctx context.Context, cmd *cobra.Command, args []string, correlationID tracing.CorrelationID) (int, error) {
	child := osexec.CommandContext(ctx, args[0], args[1:]...)
	child.Stdin = cmd.InOrStdin()
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()
	child.Env = append(os.Environ(), tracing.InjectEnv(ctx)...)
	child.Env = append(child.Env, correlationID.Env())
	child.Cancel = func() error {
		return child.Process.Signal(syscall.SIGTERM)
	}
	child.WaitDelay = waitDelay

	err := child.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			code = shared.ExitFailed
		}
		return code, fmt.Errorf("%s exited with status %d", args[0], exitErr.ExitCode())
	}
	return 0, fmt.Errorf("failed to start %s: %w", args[0], err)
}

// shutdown flushes spans and writes the metrics textfile. Failures are
// logged; they never change the job's exit status.
func shutdown(provider *tracing.Provider, cfg *config.Config, logger *slog.Logger) {
	timeout := cfg.Tracing.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := provider.ForceFlush(ctx); err != nil {
		logger.Warn("failed to flush spans", log.Error(err))
	}
	if path := cfg.Job.MetricsTextfile; path != "" {
		if err := provider.WriteTextfile(path); err != nil {
			logger.Warn("failed to write metrics textfile", slog.String("path", path), log.Error(err))
		}
	}
	if err := provider.Shutdown(ctx); err != nil {
		logger.Warn("failed to shut down tracing", log.Error(err))
	}
}
