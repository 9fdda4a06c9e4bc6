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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws-samples/tracing-etl-workloads-otel/internal/cli"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/check"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/exec"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/resolve"
	versioncmd "github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Correlation commands
	rootCmd.AddCommand(exec.NewCommand())
	rootCmd.AddCommand(resolve.NewCommand())

	// Diagnostics commands
	rootCmd.AddCommand(check.NewCommand())

	// Version command
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	// Custom help command with JSON support
	rootCmd.SetHelpCommand(cli.NewHelpCommand(rootCmd))

	// SIGTERM from the job runner is forwarded to the exec child through
	// the cancelled context.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		cli.HandleExitError(err)
	}
}
