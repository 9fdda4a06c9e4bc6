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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	pkgerrors "github.com/aws-samples/tracing-etl-workloads-otel/pkg/errors"
)

// AWSOptions selects the AWS account, region and endpoint to talk to.
type AWSOptions struct {
	// Region overrides the region from the environment or shared config.
	Region string

	// Profile selects a shared config profile.
	Profile string

	// Endpoint overrides the X-Ray endpoint, e.g. for a local emulator.
	Endpoint string

	// Credentials overrides the default credential chain.
	Credentials aws.CredentialsProvider
}

// LoadAWSConfig resolves AWS configuration from the default chain
// (environment, shared config, container and instance roles).
func LoadAWSConfig(ctx context.Context, opts AWSOptions) (aws.Config, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.Credentials != nil {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(opts.Credentials))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, &pkgerrors.ConfigError{
			Key:    "aws",
			Reason: "failed to load AWS configuration",
			Cause:  err,
		}
	}
	if cfg.Region == "" {
		return aws.Config{}, &pkgerrors.ConfigError{
			Key:    "aws.region",
			Reason: "no AWS region configured; set aws.region, AWS_REGION or a profile region",
		}
	}
	return cfg, nil
}
