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

package shared

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/aws-samples/tracing-etl-workloads-otel/internal/config"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/log"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/xray"
	"github.com/aws-samples/tracing-etl-workloads-otel/pkg/correlation"
)

// Global flag values - set by root command
var (
	verboseFlag bool
	quietFlag   bool
	jsonFlag    bool
	configFlag  string

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns pointers to flag variables for binding.
func RegisterFlagPointers() (*bool, *bool, *bool, *string) {
	return &verboseFlag, &quietFlag, &jsonFlag, &configFlag
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// GetJSON returns the JSON output flag value
func GetJSON() bool {
	return jsonFlag
}

// GetQuiet returns the quiet flag value
func GetQuiet() bool {
	return quietFlag
}

// LoadConfig loads the file named by --config, or the default config file
// when the flag is empty.
func LoadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFlag != "" {
		cfg, err = config.Load(configFlag)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	return cfg, nil
}

// NewLogger builds the command logger. Environment variables win over the
// config file, and --verbose or --quiet win over both.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	lc := log.FromEnv()
	lc.Output = w

	if os.Getenv("ETLTRACE_DEBUG") == "" && os.Getenv("LOG_LEVEL") == "" && cfg.Level != "" {
		lc.Level = cfg.Level
	}
	if os.Getenv("LOG_FORMAT") == "" && cfg.Format != "" {
		lc.Format = log.Format(cfg.Format)
	}
	lc.AddSource = lc.AddSource || cfg.AddSource

	switch {
	case verboseFlag:
		lc.Level = "debug"
	case quietFlag:
		lc.Level = "error"
	}

	return log.New(lc)
}

// BackendFactory creates the trace backend for a configuration.
type BackendFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (correlation.Backend, error)

var backendFactory BackendFactory = newXRayBackend

// SetBackendFactoryForTest replaces the backend factory and returns a
// function restoring the previous one.
func SetBackendFactoryForTest(f BackendFactory) func() {
	prev := backendFactory
	backendFactory = f
	return func() { backendFactory = prev }
}

// SetConfigPathForTest sets the config path for testing purposes
func SetConfigPathForTest(path string) {
	configFlag = path
}

func newXRayBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (correlation.Backend, error) {
	backend, err := xray.NewFromConfig(ctx, cfg.AWSOptions(), xray.WithLogger(logger))
	if err != nil {
		return nil, NewConfigError("failed to configure X-Ray client", err)
	}
	return backend, nil
}

// NewCorrelator builds the correlator described by cfg: the X-Ray backend
// behind call logging, retries and the rate limit, in that order from the
// outside in.
func NewCorrelator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*correlation.Correlator, error) {
	backend, err := backendFactory(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	backend = xray.RateLimited(backend, cfg.Correlation.RateLimit.PerSecond, cfg.Correlation.RateLimit.Burst)
	if retry := cfg.RetryConfig(); retry.MaxAttempts > 1 {
		backend = xray.Retrying(backend, retry)
	}
	backend = xray.Logged(backend, logger)

	return correlation.New(backend,
		correlation.WithOrchestratorSegment(cfg.Correlation.OrchestratorSegment),
		correlation.WithSegmentField(cfg.SegmentField()),
	), nil
}
