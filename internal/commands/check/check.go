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

// Package check implements the check command, which verifies that the job
// environment can reach X-Ray before a pipeline depends on it.
package check

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	awsxray "github.com/aws/aws-sdk-go-v2/service/xray"
	"github.com/spf13/cobra"

	"github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/shared"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/config"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/xray"
)

// placeholderTraceID is a well-formed trace id that never exists. BatchGetTraces
// returns it as unprocessed when the caller is allowed to read traces.
const placeholderTraceID = "1-00000000-000000000000000000000000"

// Check names.
const (
	StepAWSConfig   = "aws_config"
	StepCredentials = "credentials"
	StepXRay        = "xray"
)

type stsAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// clients builds the AWS clients for a resolved configuration. Tests
// replace it.
var clients = func(cfg aws.Config, opts xray.AWSOptions) (stsAPI, xray.API) {
	return sts.NewFromConfig(cfg), xray.NewAPI(cfg, opts)
}

// Step is the outcome of one check.
type Step struct {
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	Detail     string `json:"detail,omitempty"`
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Result is the check command's output.
type Result struct {
	shared.JSONResponse
	Region  string `json:"region,omitempty"`
	Account string `json:"account,omitempty"`
	ARN     string `json:"arn,omitempty"`
	Steps   []Step `json:"steps"`
	Healthy bool   `json:"healthy"`
}

// NewCommand creates the check command
func NewCommand() *cobra.Command {
	var traceID string

	cmd := &cobra.Command{
		Use: "check",
		Annotations: map[string]string{
			"group": "diagnostics",
		},
		Short: "Verify AWS credentials and X-Ray access",
		Long: `Check resolves the AWS configuration, confirms the credentials with STS
GetCallerIdentity and makes a BatchGetTraces call to confirm the
xray:BatchGetTraces permission.

With --trace-id the call reads that trace instead of a placeholder id, which also
shows whether the orchestrator trace is visible yet.

Exit codes:
  0 - All checks passed
  3 - AWS configuration could not be loaded
  5 - Credentials or X-Ray access failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, traceID)
		},
	}

	cmd.Flags().StringVar(&traceID, "trace-id", "", "Trace to read instead of a placeholder id")

	return cmd
}

func run(cmd *cobra.Command, traceID string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Correlation.Timeout)
	defer cancel()

	result := Check(ctx, cfg, traceID)

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		if err := shared.EmitJSON(out, result); err != nil {
			return err
		}
	} else {
		writeText(out, result)
	}

	if result.Healthy {
		return nil
	}
	code := shared.ExitBackendUnavailable
	if !result.Steps[0].OK {
		code = shared.ExitConfig
	}
	return &shared.ExitError{Code: code, Message: "check failed", Silent: true}
}

// Check runs every check in order and stops at the first failure.
func Check(ctx context.Context, cfg *config.Config, traceID string) Result {
	result := Result{JSONResponse: shared.NewJSONResponse("check")}
	result.JSONResponse.Success = false

	opts := cfg.AWSOptions()
	awsCfg, err := xray.LoadAWSConfig(ctx, opts)
	if err != nil {
		result.Steps = append(result.Steps, Step{
			Name:       StepAWSConfig,
			Error:      err.Error(),
			Suggestion: "Set aws.region in the config file or AWS_REGION in the environment",
		})
		return result
	}
	result.Region = awsCfg.Region
	result.Steps = append(result.Steps, Step{Name: StepAWSConfig, OK: true, Detail: awsCfg.Region})

	stsClient, xrayClient := clients(awsCfg, opts)

	identity, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		result.Steps = append(result.Steps, Step{
			Name:       StepCredentials,
			Error:      err.Error(),
			Suggestion: "Check the job role, AWS_PROFILE or the AWS_ACCESS_KEY_ID environment variables",
		})
		return result
	}
	result.Account = aws.ToString(identity.Account)
	result.ARN = aws.ToString(identity.Arn)
	result.Steps = append(result.Steps, Step{Name: StepCredentials, OK: true, Detail: result.ARN})

	id := placeholderTraceID
	if traceID != "" {
		id = traceID
	}
	out, err := xrayClient.BatchGetTraces(ctx, &awsxray.BatchGetTracesInput{TraceIds: []string{id}})
	if err != nil {
		result.Steps = append(result.Steps, Step{
			Name:       StepXRay,
			Error:      err.Error(),
			Suggestion: "Grant xray:BatchGetTraces to " + result.ARN,
		})
		return result
	}
	result.Steps = append(result.Steps, Step{Name: StepXRay, OK: true, Detail: xrayDetail(traceID, out)})

	result.Healthy = true
	result.JSONResponse.Success = true
	return result
}

func xrayDetail(traceID string, out *awsxray.BatchGetTracesOutput) string {
	if traceID == "" {
		return "BatchGetTraces allowed"
	}
	for _, t := range out.Traces {
		if aws.ToString(t.Id) == traceID {
			return fmt.Sprintf("trace %s has %d segments", traceID, len(t.Segments))
		}
	}
	return fmt.Sprintf("trace %s not found yet", traceID)
}

func writeText(w io.Writer, result Result) {
	fmt.Fprintln(w, shared.Header.Render("etltrace check"))
	for _, step := range result.Steps {
		fmt.Fprintf(w, "  %-12s %s", step.Name, shared.RenderStatus(step.OK))
		if step.Detail != "" {
			fmt.Fprintf(w, " %s", shared.Muted.Render("("+step.Detail+")"))
		}
		fmt.Fprintln(w)
		if step.Error != "" {
			fmt.Fprintf(w, "    Error: %s\n", step.Error)
		}
		if step.Suggestion != "" {
			fmt.Fprintf(w, "    Suggestion: %s\n", step.Suggestion)
		}
	}
}
