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
	"time"
)

// Config holds the span and metric pipeline configuration.
type Config struct {
	// Enabled controls whether spans are exported.
	Enabled bool

	// ServiceName identifies the job in traces (service.name).
	ServiceName string

	// ServiceVersion is the job or tool version.
	ServiceVersion string

	// Sampling configures trace sampling for root spans.
	Sampling SamplingConfig

	// Exporters configures span export destinations.
	Exporters []ExporterConfig

	// BatchSize is the maximum number of spans per export batch (default: 512).
	BatchSize int

	// BatchInterval is how often to flush spans (default: 5s).
	BatchInterval time.Duration

	// ShutdownTimeout bounds the final flush when the job ends (default: 10s).
	ShutdownTimeout time.Duration
}

// SamplingConfig controls which root traces are recorded. Spans with a
// remote parent follow the parent's sampling decision.
type SamplingConfig struct {
	// Enabled activates sampling (default: false - sample all).
	Enabled bool

	// Rate is the fraction of traces to sample (0.0 - 1.0).
	Rate float64

	// AlwaysSampleErrors samples spans started with an error attribute.
	AlwaysSampleErrors bool
}

// ExporterConfig defines a span export destination.
type ExporterConfig struct {
	// Type is the exporter type: "otlp", "otlp_http", "console" or "none".
	Type string `yaml:"type"`

	// Endpoint is host:port of the receiver, e.g. the collector sidecar.
	Endpoint string `yaml:"endpoint"`

	// URLPath overrides the OTLP/HTTP path (default: /v1/traces).
	URLPath string `yaml:"url_path,omitempty"`

	// Headers are additional headers sent with each export.
	Headers map[string]string `yaml:"headers,omitempty"`

	// TLS configures secure connections.
	TLS TLSConfig `yaml:"tls,omitempty"`

	// Timeout is the export timeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// TLSConfig configures TLS for exporters.
type TLSConfig struct {
	// Enabled activates TLS.
	Enabled bool `yaml:"enabled"`

	// VerifyCertificate controls certificate validation.
	VerifyCertificate bool `yaml:"verify_certificate"`

	// CACertPath is the path to the CA certificate.
	CACertPath string `yaml:"ca_cert_path,omitempty"`
}

// DefaultConfig returns configuration that exports to a collector on
// localhost over OTLP/HTTP.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		ServiceName:    "etltrace",
		ServiceVersion: "unknown",
		Sampling: SamplingConfig{
			Enabled:            false,
			Rate:               1.0,
			AlwaysSampleErrors: true,
		},
		Exporters: []ExporterConfig{
			{Type: "otlp_http", Endpoint: "localhost:4318"},
		},
		BatchSize:       512,
		BatchInterval:   5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}
