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

package xray

import (
	"context"
	"errors"
	"fmt"
	"net"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"

	"github.com/aws-samples/tracing-etl-workloads-otel/pkg/correlation"
	pkgerrors "github.com/aws-samples/tracing-etl-workloads-otel/pkg/errors"
)

// Error codes X-Ray returns that need special handling.
const (
	codeInvalidRequest = "InvalidRequestException"
	codeThrottled      = "ThrottledException"
)

// classifyError converts an SDK error into a *pkgerrors.BackendError.
// X-Ray rejects unknown and malformed trace ids with InvalidRequestException,
// so that code is reported as correlation.ErrTraceNotFound.
func classifyError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	backendErr := &pkgerrors.BackendError{
		Backend:   "xray",
		Operation: operation,
		Message:   err.Error(),
		Cause:     err,
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		backendErr.StatusCode = respErr.HTTPStatusCode()
		backendErr.RequestID = respErr.ServiceRequestID()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		backendErr.Code = apiErr.ErrorCode()
		backendErr.Message = apiErr.ErrorMessage()

		switch {
		case apiErr.ErrorCode() == codeInvalidRequest:
			return fmt.Errorf("%w: %w", correlation.ErrTraceNotFound, backendErr)
		case apiErr.ErrorCode() == codeThrottled:
			backendErr.Retryable = true
		case apiErr.ErrorFault() == smithy.FaultServer:
			backendErr.Retryable = true
		}
		return backendErr
	}

	switch {
	case backendErr.StatusCode == 429 || backendErr.StatusCode >= 500:
		backendErr.Retryable = true
	case backendErr.StatusCode == 0:
		// No HTTP response at all: connection or DNS failure.
		var netErr net.Error
		backendErr.Retryable = errors.As(err, &netErr) || errors.Is(err, net.ErrClosed)
	}
	return backendErr
}
