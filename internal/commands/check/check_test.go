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

package check

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	awsxray "github.com/aws/aws-sdk-go-v2/service/xray"
	"github.com/aws/aws-sdk-go-v2/service/xray/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-samples/tracing-etl-workloads-otel/internal/cli"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/shared"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/xray"
)

const testARN = "arn:aws:sts::123456789012:assumed-role/GlueJobRole/job"

type fakeSTS struct {
	err error
}

func (f *fakeSTS) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String(testARN),
	}, nil
}

type fakeXRay struct {
	err    error
	traces []types.Trace
	ids    []string
}

func (f *fakeXRay) BatchGetTraces(ctx context.Context, params *awsxray.BatchGetTracesInput, optFns ...func(*awsxray.Options)) (*awsxray.BatchGetTracesOutput, error) {
	f.ids = append(f.ids, params.TraceIds...)
	if f.err != nil {
		return nil, f.err
	}
	return &awsxray.BatchGetTracesOutput{Traces: f.traces, UnprocessedTraceIds: params.TraceIds}, nil
}

func setup(t *testing.T, region string, stsClient stsAPI, xrayClient xray.API) string {
	t.Helper()

	dir := t.TempDir()
	for _, name := range []string{"AWS_REGION", "AWS_DEFAULT_REGION", "AWS_PROFILE", "ETLTRACE_AWS_REGION"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "aws-config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "aws-credentials"))

	prev := clients
	clients = func(aws.Config, xray.AWSOptions) (stsAPI, xray.API) {
		return stsClient, xrayClient
	}
	t.Cleanup(func() { clients = prev })

	path := filepath.Join(dir, "config.yaml")
	content := "log:\n  level: error\n"
	if region != "" {
		content += "aws:\n  region: " + region + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()

	root := cli.NewRootCommand()
	root.AddCommand(NewCommand())

	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stdout)
	root.SetArgs(append([]string{"--config", configPath, "check"}, args...))

	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestCheck_Healthy(t *testing.T) {
	xr := &fakeXRay{}
	path := setup(t, "eu-west-1", &fakeSTS{}, xr)

	out, err := execute(t, path)
	require.NoError(t, err)

	assert.Contains(t, out, "aws_config   OK (eu-west-1)")
	assert.Contains(t, out, "credentials  OK ("+testARN+")")
	assert.Contains(t, out, "xray         OK (BatchGetTraces allowed)")
	assert.Equal(t, []string{placeholderTraceID}, xr.ids)
}

func TestCheck_JSONWithTrace(t *testing.T) {
	traceID := "1-67a1c2d3-4e5f60718293a4b5c6d7e8f9"
	xr := &fakeXRay{traces: []types.Trace{{
		Id:       aws.String(traceID),
		Segments: []types.Segment{{Id: aws.String("a")}, {Id: aws.String("b")}},
	}}}
	path := setup(t, "eu-west-1", &fakeSTS{}, xr)

	out, err := execute(t, path, "--json", "--trace-id", traceID)
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.True(t, result.Healthy)
	assert.Equal(t, "123456789012", result.Account)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, "trace "+traceID+" has 2 segments", result.Steps[2].Detail)
	assert.Equal(t, []string{traceID}, xr.ids)
}

func TestCheck_Failures(t *testing.T) {
	tests := []struct {
		name     string
		region   string
		sts      *fakeSTS
		xray     *fakeXRay
		wantStep string
		wantCode int
	}{
		{
			name:     "no region",
			sts:      &fakeSTS{},
			xray:     &fakeXRay{},
			wantStep: StepAWSConfig,
			wantCode: shared.ExitConfig,
		},
		{
			name:     "bad credentials",
			region:   "eu-west-1",
			sts:      &fakeSTS{err: errors.New("ExpiredToken")},
			xray:     &fakeXRay{},
			wantStep: StepCredentials,
			wantCode: shared.ExitBackendUnavailable,
		},
		{
			name:     "access denied",
			region:   "eu-west-1",
			sts:      &fakeSTS{},
			xray:     &fakeXRay{err: errors.New("AccessDeniedException")},
			wantStep: StepXRay,
			wantCode: shared.ExitBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := setup(t, tt.region, tt.sts, tt.xray)

			out, err := execute(t, path, "--json")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, shared.ExitCodeFor(err))

			var result Result
			require.NoError(t, json.Unmarshal([]byte(out), &result))
			assert.False(t, result.Success)
			assert.False(t, result.Healthy)

			last := result.Steps[len(result.Steps)-1]
			assert.Equal(t, tt.wantStep, last.Name)
			assert.False(t, last.OK)
			assert.NotEmpty(t, last.Error)
			assert.NotEmpty(t, last.Suggestion)
		})
	}
}
