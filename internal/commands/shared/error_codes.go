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
	"errors"

	"github.com/aws-samples/tracing-etl-workloads-otel/pkg/correlation"
	pkgerrors "github.com/aws-samples/tracing-etl-workloads-otel/pkg/errors"
)

// Error codes for structured JSON output
const (
	// Input errors (E001-E099)
	ErrorCodeInvalidInput  = "E001" // Bad flag or argument
	ErrorCodeInvalidConfig = "E002" // Configuration failed to load

	// Correlation errors (E100-E199)
	ErrorCodeTraceNotFound      = "E101"
	ErrorCodeSegmentNotFound    = "E102"
	ErrorCodeSubsegmentNotFound = "E103"
	ErrorCodeRequestIDMissing   = "E104"
	ErrorCodeSegmentIDNotFound  = "E105"

	// Backend errors (E200-E299)
	ErrorCodeBackendUnavailable = "E201"
	ErrorCodeTimeout            = "E202"

	// Everything else
	ErrorCodeInternal = "E401"
)

var lookupErrorCodes = []struct {
	kind error
	code string
}{
	{correlation.ErrTraceNotFound, ErrorCodeTraceNotFound},
	{correlation.ErrSegmentNotFound, ErrorCodeSegmentNotFound},
	{correlation.ErrSubsegmentNotFound, ErrorCodeSubsegmentNotFound},
	{correlation.ErrRequestIDMissing, ErrorCodeRequestIDMissing},
	{correlation.ErrSegmentIDNotFound, ErrorCodeSegmentIDNotFound},
	{correlation.ErrBackendUnavailable, ErrorCodeBackendUnavailable},
}

// ErrorCode maps err to a JSON error code.
func ErrorCode(err error) string {
	for _, c := range lookupErrorCodes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}

	var validationErr *pkgerrors.ValidationError
	var configErr *pkgerrors.ConfigError
	var timeoutErr *pkgerrors.TimeoutError
	switch {
	case errors.As(err, &validationErr):
		return ErrorCodeInvalidInput
	case errors.As(err, &configErr):
		return ErrorCodeInvalidConfig
	case errors.As(err, &timeoutErr):
		return ErrorCodeTimeout
	default:
		return ErrorCodeInternal
	}
}
