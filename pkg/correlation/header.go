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

package correlation

import (
	"fmt"
	"strings"

	pkgerrors "github.com/aws-samples/tracing-etl-workloads-otel/pkg/errors"
)

// TraceHeaderName is the HTTP header carrying X-Ray trace context.
// Lambda and Glue expose the same value in the _X_AMZN_TRACE_ID variable.
const TraceHeaderName = "X-Amzn-Trace-Id"

// TraceHeader is a parsed X-Amzn-Trace-Id value.
type TraceHeader struct {
	Root    string
	Parent  string
	Sampled *bool
}

// ParseTraceHeader parses "Root=...;Parent=...;Sampled=1". Keys may
// appear in any order and unknown keys (Lineage, Self) are ignored. Root
// is required.
func ParseTraceHeader(v string) (TraceHeader, error) {
	var h TraceHeader
	for _, part := range strings.Split(v, ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "Root":
			h.Root = val
		case "Parent":
			h.Parent = val
		case "Sampled":
			switch val {
			case "1":
				sampled := true
				h.Sampled = &sampled
			case "0":
				sampled := false
				h.Sampled = &sampled
			}
		}
	}

	if h.Root == "" {
		return h, &pkgerrors.ValidationError{
			Field:   "trace_header",
			Message: fmt.Sprintf("no Root in %q", v),
		}
	}
	if !ValidTraceID(h.Root) {
		return h, &pkgerrors.ValidationError{
			Field:   "trace_header",
			Message: fmt.Sprintf("malformed Root %q", h.Root),
		}
	}
	return h, nil
}

// String renders the header value.
func (h TraceHeader) String() string {
	var b strings.Builder
	b.WriteString("Root=")
	b.WriteString(h.Root)
	if h.Parent != "" {
		b.WriteString(";Parent=")
		b.WriteString(h.Parent)
	}
	if h.Sampled != nil {
		if *h.Sampled {
			b.WriteString(";Sampled=1")
		} else {
			b.WriteString(";Sampled=0")
		}
	}
	return b.String()
}

// ParentHeader returns the header that nests new spans under segmentID.
func ParentHeader(traceID, segmentID string) TraceHeader {
	sampled := true
	return TraceHeader{Root: traceID, Parent: segmentID, Sampled: &sampled}
}

// ValidTraceID reports whether id has the X-Ray form 1-<8 hex>-<24 hex>.
func ValidTraceID(id string) bool {
	if len(id) != 35 || id[0] != '1' || id[1] != '-' || id[10] != '-' {
		return false
	}
	return isHex(id[2:10]) && isHex(id[11:])
}

// ValidSegmentID reports whether id is 16 hex digits.
func ValidSegmentID(id string) bool {
	return len(id) == 16 && isHex(id)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
