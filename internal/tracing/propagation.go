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
	"fmt"
	"sort"
	"strings"

	xrayprop "go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/aws-samples/tracing-etl-workloads-otel/pkg/correlation"
)

// Propagator returns the composite propagator installed by NewProvider:
// W3C trace context and baggage, plus the X-Amzn-Trace-Id header.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		xrayprop.Propagator{},
	)
}

// ParentContext returns ctx carrying a remote, sampled span context for
// the X-Ray trace traceID with parentID as the parent span. Spans started
// from it appear under that segment in the X-Ray service map.
func ParentContext(ctx context.Context, traceID, parentID string) (context.Context, error) {
	if !correlation.ValidSegmentID(parentID) {
		return ctx, fmt.Errorf("invalid parent segment id %q", parentID)
	}

	header := correlation.ParentHeader(traceID, parentID)
	carrier := propagation.MapCarrier{correlation.TraceHeaderName: header.String()}

	parentCtx := xrayprop.Propagator{}.Extract(ctx, carrier)
	if !trace.SpanContextFromContext(parentCtx).IsValid() {
		return ctx, fmt.Errorf("invalid trace header %q", header.String())
	}
	return parentCtx, nil
}

// envNames maps propagation fields to the environment variables a child
// process reads them from. _X_AMZN_TRACE_ID is what AWS runtimes and the
// X-Ray SDKs look for.
var envNames = map[string]string{
	"traceparent":               "TRACEPARENT",
	"tracestate":                "TRACESTATE",
	"baggage":                   "BAGGAGE",
	correlation.TraceHeaderName: "_X_AMZN_TRACE_ID",
}

// EnvCarrier is a TextMapCarrier backed by environment variables.
type EnvCarrier map[string]string

// Get returns the value stored for the propagation field key.
func (c EnvCarrier) Get(key string) string {
	return c[envName(key)]
}

// Set stores the value under the environment name for key.
func (c EnvCarrier) Set(key, value string) {
	c[envName(key)] = value
}

// Keys lists the stored environment variable names.
func (c EnvCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Environ renders the carrier as KEY=value pairs in key order.
func (c EnvCarrier) Environ() []string {
	env := make([]string, 0, len(c))
	for _, k := range c.Keys() {
		env = append(env, k+"="+c[k])
	}
	return env
}

// EnvCarrierFrom builds a carrier from os.Environ style pairs, keeping
// only propagation variables.
func EnvCarrierFrom(environ []string) EnvCarrier {
	known := make(map[string]bool, len(envNames))
	for _, name := range envNames {
		known[name] = true
	}

	c := EnvCarrier{}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok && known[k] {
			c[k] = v
		}
	}
	return c
}

func envName(key string) string {
	if name, ok := envNames[key]; ok {
		return name
	}
	for field, name := range envNames {
		if strings.EqualFold(field, key) {
			return name
		}
	}
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// InjectEnv returns the environment variables that carry the span context
// in ctx to a child process.
func InjectEnv(ctx context.Context) []string {
	carrier := EnvCarrier{}
	Propagator().Inject(ctx, carrier)
	return carrier.Environ()
}

var _ propagation.TextMapCarrier = EnvCarrier(nil)
