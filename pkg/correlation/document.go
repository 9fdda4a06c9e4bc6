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

	"github.com/goccy/go-json"
)

// ParseSegmentDocument decodes an X-Ray segment document.
// Unknown fields (http, metadata, annotations, ...) are ignored.
func ParseSegmentDocument(doc []byte) (Segment, error) {
	var seg Segment
	if len(doc) == 0 {
		return seg, fmt.Errorf("empty segment document")
	}
	if err := json.Unmarshal(doc, &seg); err != nil {
		return seg, fmt.Errorf("failed to decode segment document: %w", err)
	}
	return seg, nil
}

// traceFile is the JSON shape accepted by LoadTrace: the BatchGetTraces
// trace object with segment documents either embedded as strings (as the
// API returns them) or inlined as objects.
type traceFile struct {
	ID       string `json:"Id"`
	Segments []struct {
		ID       string          `json:"Id"`
		Document json.RawMessage `json:"Document"`
	} `json:"Segments"`
}

// LoadTrace decodes a trace in BatchGetTraces output form, e.g. a trace
// saved with `aws xray batch-get-traces --query 'Traces[0]'`.
func LoadTrace(data []byte) (*Trace, error) {
	var tf traceFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to decode trace: %w", err)
	}

	trace := &Trace{ID: tf.ID, Segments: make([]Segment, 0, len(tf.Segments))}
	for i, s := range tf.Segments {
		doc := []byte(s.Document)
		// The API embeds each document as a JSON string.
		if len(doc) > 0 && doc[0] == '"' {
			var str string
			if err := json.Unmarshal(doc, &str); err != nil {
				return nil, fmt.Errorf("segment %d: failed to decode document string: %w", i, err)
			}
			doc = []byte(str)
		}
		seg, err := ParseSegmentDocument(doc)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		if s.ID != "" {
			seg.ID = s.ID
		}
		trace.Segments = append(trace.Segments, seg)
	}
	return trace, nil
}
