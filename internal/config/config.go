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

// Package config loads etltrace configuration from a YAML file and
// ETLTRACE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/aws-samples/tracing-etl-workloads-otel/internal/tracing"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/xray"
	"github.com/aws-samples/tracing-etl-workloads-otel/pkg/correlation"
	pkgerrors "github.com/aws-samples/tracing-etl-workloads-otel/pkg/errors"
)

// EnvPrefix is the prefix of all configuration environment variables.
const EnvPrefix = "ETLTRACE"

// Environment variables overriding the job section. Commands document
// them as the fallback for their flags.
const (
	EnvJobTraceID         = EnvPrefix + "_JOB_TRACE_ID"
	EnvJobStep            = EnvPrefix + "_JOB_STEP"
	EnvJobName            = EnvPrefix + "_JOB_NAME"
	EnvJobMetricsTextfile = EnvPrefix + "_JOB_METRICS_TEXTFILE"
)

// EnvAmznTraceID is set by AWS runtimes to the current X-Amzn-Trace-Id.
const EnvAmznTraceID = "_X_AMZN_TRACE_ID"

// DefaultOTLPPort is appended to a bare collector host name.
const DefaultOTLPPort = "4318"

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete etltrace configuration.
type Config struct {
	AWS         AWSConfig         `yaml:"aws"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Log         LogConfig         `yaml:"log"`
	Job         JobConfig         `yaml:"job"`
}

// AWSConfig selects the account and endpoint used to read X-Ray.
type AWSConfig struct {
	// Region is the X-Ray region. Environment: ETLTRACE_AWS_REGION,
	// otherwise the SDK's AWS_REGION chain.
	Region string `yaml:"region,omitempty"`

	// Profile is the shared config profile.
	Profile string `yaml:"profile,omitempty"`

	// Endpoint overrides the X-Ray endpoint URL.
	Endpoint string `yaml:"endpoint,omitempty"`
}

// CorrelationConfig controls how the parent segment is found.
type CorrelationConfig struct {
	// OrchestratorSegment is the value identifying the orchestrator
	// segment.
	// Default: AWS::StepFunctions::StateMachine
	OrchestratorSegment string `yaml:"orchestrator_segment" split_words:"true"`

	// MatchField is the segment field OrchestratorSegment is compared
	// against: "name" or "origin".
	// Default: origin
	MatchField string `yaml:"match_field" split_words:"true"`

	// Timeout bounds the whole lookup.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	Retry     RetryConfig     `yaml:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit" split_words:"true"`
}

// RetryConfig configures retries of X-Ray reads.
type RetryConfig struct {
	// MaxAttempts includes the first call.
	// Default: 1
	MaxAttempts int `yaml:"max_attempts" split_words:"true"`

	InitialBackoff time.Duration `yaml:"initial_backoff" split_words:"true"`
	MaxBackoff     time.Duration `yaml:"max_backoff" split_words:"true"`
	BackoffFactor  float64       `yaml:"backoff_factor" split_words:"true"`

	// RetryNotFound keeps polling while the trace or the downstream
	// segment is not yet indexed.
	RetryNotFound bool `yaml:"retry_not_found" split_words:"true"`
}

// RateLimitConfig caps X-Ray calls per second. Zero disables the limit.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" split_words:"true"`
	Burst     int     `yaml:"burst"`
}

// TracingConfig configures span and metric export.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ServiceName defaults to the job name.
	ServiceName    string `yaml:"service_name,omitempty" split_words:"true"`
	ServiceVersion string `yaml:"service_version,omitempty" split_words:"true"`

	// SamplingRate applies to jobs without an orchestrator parent.
	// Default: 1.0
	SamplingRate       float64 `yaml:"sampling_rate" split_words:"true"`
	AlwaysSampleErrors bool    `yaml:"always_sample_errors" split_words:"true"`

	BatchSize       int           `yaml:"batch_size" split_words:"true"`
	BatchInterval   time.Duration `yaml:"batch_interval" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`

	// OTLPEndpoint is a collector host or host:port. When set it replaces
	// the exporters list with a single OTLP/HTTP exporter; a bare host
	// gets port 4318.
	// Environment: ETLTRACE_TRACING_OTLP_ENDPOINT
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty" envconfig:"OTLP_ENDPOINT"`

	// Exporters lists span destinations. File only.
	Exporters []tracing.ExporterConfig `yaml:"exporters,omitempty" ignored:"true"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text). Empty lets the CLI pick
	// text on a terminal.
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	AddSource bool `yaml:"add_source" split_words:"true"`
}

// JobConfig identifies the job run being traced.
type JobConfig struct {
	// TraceID is the orchestrator's X-Ray trace id. Falls back to the
	// Root of _X_AMZN_TRACE_ID.
	TraceID string `yaml:"trace_id,omitempty" split_words:"true"`

	// Step is the state machine step that started the job.
	Step string `yaml:"step,omitempty"`

	// Name is the job name.
	Name string `yaml:"name,omitempty"`

	// MetricsTextfile is where run metrics are written, if set.
	MetricsTextfile string `yaml:"metrics_textfile,omitempty" split_words:"true"`
}

// Default returns the default configuration.
func Default() *Config {
	retry := xray.DefaultRetryConfig()
	tracingDefaults := tracing.DefaultConfig()

	return &Config{
		Correlation: CorrelationConfig{
			OrchestratorSegment: correlation.StateMachineOrigin,
			MatchField:          string(correlation.FieldOrigin),
			Timeout:             30 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:    retry.MaxAttempts,
				InitialBackoff: retry.InitialBackoff,
				MaxBackoff:     retry.MaxBackoff,
				BackoffFactor:  retry.BackoffFactor,
			},
			RateLimit: RateLimitConfig{Burst: 1},
		},
		Tracing: TracingConfig{
			Enabled:            true,
			SamplingRate:       tracingDefaults.Sampling.Rate,
			AlwaysSampleErrors: tracingDefaults.Sampling.AlwaysSampleErrors,
			BatchSize:          tracingDefaults.BatchSize,
			BatchInterval:      tracingDefaults.BatchInterval,
			ShutdownTimeout:    tracingDefaults.ShutdownTimeout,
			Exporters:          tracingDefaults.Exporters,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from an optional YAML file, then environment
// variables, which take precedence. An empty configPath loads only the
// defaults and the environment.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &pkgerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, &pkgerrors.ConfigError{
			Key:    "environment",
			Reason: "failed to read " + EnvPrefix + "_* variables",
			Cause:  err,
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, &pkgerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// LoadDefault loads the file at ConfigPath if it exists.
func LoadDefault() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Load("")
	}
	if _, err := os.Stat(path); err != nil {
		return Load("")
	}
	return Load(path)
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv overrides fields from ETLTRACE_<SECTION>_<FIELD> variables,
// e.g. ETLTRACE_CORRELATION_MATCH_FIELD or ETLTRACE_JOB_TRACE_ID.
func (c *Config) loadFromEnv() error {
	return envconfig.Process(EnvPrefix, c)
}

// applyDefaults fills derived values.
func (c *Config) applyDefaults() {
	if c.Job.TraceID == "" {
		if h, err := correlation.ParseTraceHeader(os.Getenv(EnvAmznTraceID)); err == nil {
			c.Job.TraceID = h.Root
		}
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.Job.Name
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "etltrace"
	}

	if c.Tracing.OTLPEndpoint != "" {
		c.Tracing.Exporters = []tracing.ExporterConfig{{
			Type:     "otlp_http",
			Endpoint: collectorAddress(c.Tracing.OTLPEndpoint),
		}}
	}
}

func collectorAddress(endpoint string) string {
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
	endpoint = strings.TrimSuffix(endpoint, "/")
	if _, _, err := net.SplitHostPort(endpoint); err == nil {
		return endpoint
	}
	return net.JoinHostPort(endpoint, DefaultOTLPPort)
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if _, err := correlation.ParseSegmentField(c.Correlation.MatchField); err != nil {
		errs = append(errs, fmt.Sprintf("correlation.match_field: %v", err))
	}
	if c.Correlation.OrchestratorSegment == "" {
		errs = append(errs, "correlation.orchestrator_segment must not be empty")
	}
	if c.Correlation.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("correlation.timeout must not be negative, got %v", c.Correlation.Timeout))
	}
	if err := c.RetryConfig().Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("correlation.retry: %v", err))
	}
	if c.Correlation.RateLimit.PerSecond < 0 {
		errs = append(errs, fmt.Sprintf("correlation.rate_limit.per_second must not be negative, got %v", c.Correlation.RateLimit.PerSecond))
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sampling_rate must be between 0 and 1, got %v", c.Tracing.SamplingRate))
	}
	validExporters := map[string]bool{"otlp": true, "otlp_grpc": true, "otlp_http": true, "otlp-http": true, "console": true, "none": true}
	for i, exp := range c.Tracing.Exporters {
		if !validExporters[exp.Type] {
			errs = append(errs, fmt.Sprintf("tracing.exporters[%d].type %q is not one of [otlp, otlp_http, console, none]", i, exp.Type))
		}
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"": true, "json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Job.TraceID != "" && !correlation.ValidTraceID(c.Job.TraceID) {
		errs = append(errs, fmt.Sprintf("job.trace_id %q is not an X-Ray trace id", c.Job.TraceID))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// SegmentField returns the validated match field.
func (c *Config) SegmentField() correlation.SegmentField {
	f, err := correlation.ParseSegmentField(c.Correlation.MatchField)
	if err != nil {
		return correlation.FieldName
	}
	return f
}

// RetryConfig converts the retry section for the X-Ray backend.
func (c *Config) RetryConfig() *xray.RetryConfig {
	r := c.Correlation.Retry
	return &xray.RetryConfig{
		MaxAttempts:    r.MaxAttempts,
		InitialBackoff: r.InitialBackoff,
		MaxBackoff:     r.MaxBackoff,
		BackoffFactor:  r.BackoffFactor,
		RetryNotFound:  r.RetryNotFound,
	}
}

// AWSOptions converts the aws section for the X-Ray client.
func (c *Config) AWSOptions() xray.AWSOptions {
	return xray.AWSOptions{
		Region:   c.AWS.Region,
		Profile:  c.AWS.Profile,
		Endpoint: c.AWS.Endpoint,
	}
}

// TracingConfig converts the tracing section for the tracing provider.
func (c *Config) TracingConfig() tracing.Config {
	t := c.Tracing
	return tracing.Config{
		Enabled:        t.Enabled,
		ServiceName:    t.ServiceName,
		ServiceVersion: t.ServiceVersion,
		Sampling: tracing.SamplingConfig{
			Enabled:            t.SamplingRate < 1,
			Rate:               t.SamplingRate,
			AlwaysSampleErrors: t.AlwaysSampleErrors,
		},
		Exporters:       t.Exporters,
		BatchSize:       t.BatchSize,
		BatchInterval:   t.BatchInterval,
		ShutdownTimeout: t.ShutdownTimeout,
	}
}
