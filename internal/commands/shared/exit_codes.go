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
	"fmt"
	"io"
	"os"

	"github.com/aws-samples/tracing-etl-workloads-otel/pkg/correlation"
	pkgerrors "github.com/aws-samples/tracing-etl-workloads-otel/pkg/errors"
)

// Exit codes shared by all commands. The exec command instead exits with
// the wrapped command's own status.
const (
	ExitSuccess            = 0
	ExitFailed             = 1
	ExitUsage              = 2
	ExitConfig             = 3
	ExitNotCorrelated      = 4
	ExitBackendUnavailable = 5
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error

	// Silent suppresses the error message, e.g. when a wrapped command
	// already reported its own failure.
	Silent bool
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		if e.Message == "" {
			return e.Cause.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewUsageError creates an error for bad arguments or flags
func NewUsageError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitUsage, Message: msg, Cause: cause}
}

// NewConfigError creates an error for configuration failures
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Cause: cause}
}

// NewCorrelationError creates an error for a failed parent lookup. The
// exit code tells an unreachable backend apart from a trace that simply
// does not contain the step.
func NewCorrelationError(msg string, cause error) *ExitError {
	code := ExitNotCorrelated
	if errors.Is(cause, correlation.ErrBackendUnavailable) {
		code = ExitBackendUnavailable
	}
	var validationErr *pkgerrors.ValidationError
	if errors.As(cause, &validationErr) {
		code = ExitUsage
	}
	return &ExitError{Code: code, Message: msg, Cause: cause}
}

// NewChildExitError carries a wrapped command's exit status.
func NewChildExitError(code int, cause error) *ExitError {
	return &ExitError{Code: code, Cause: cause, Silent: true}
}

// ExitCodeFor returns the process exit code for err.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var cfgErr *pkgerrors.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}
	return ExitFailed
}

// WriteError prints err and any suggestion attached to it.
func WriteError(w io.Writer, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Silent {
		return
	}

	fmt.Fprintln(w, "Error:", err.Error())
	if suggestion := pkgerrors.SuggestionFor(err); suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
	}
}

// HandleExitError prints err and exits with its exit code
func HandleExitError(err error) {
	if err == nil {
		return
	}
	WriteError(os.Stderr, err)
	os.Exit(ExitCodeFor(err))
}
