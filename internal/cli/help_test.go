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

package cli

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/check"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/exec"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/resolve"
	"github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/shared"
	versioncmd "github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/version"
)

// newCommandTree assembles the command tree the way main does.
func newCommandTree() *cobra.Command {
	root := NewRootCommand()
	root.AddCommand(exec.NewCommand())
	root.AddCommand(resolve.NewCommand())
	root.AddCommand(check.NewCommand())
	root.AddCommand(versioncmd.NewVersionCommand())
	root.SetHelpCommand(NewHelpCommand(root))
	return root
}

func runHelp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newCommandTree()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"help"}, args...))
	err := root.Execute()
	return out.String(), err
}

func decodeHelp(t *testing.T, out string) HelpResponse {
	t.Helper()
	var resp HelpResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	return resp
}

func findFlag(flags []FlagMetadata, name string) (FlagMetadata, bool) {
	for _, f := range flags {
		if f.Name == name {
			return f, true
		}
	}
	return FlagMetadata{}, false
}

func TestHelpJSON_Groups(t *testing.T) {
	out, err := runHelp(t, "--json")
	if err != nil {
		t.Fatalf("help --json: %v", err)
	}
	resp := decodeHelp(t, out)

	if resp.JSONResponse.Command != "help" || !resp.Success {
		t.Errorf("unexpected envelope: %+v", resp.JSONResponse)
	}

	want := []GroupMetadata{
		{Name: "correlation", Commands: []string{"exec", "resolve"}},
		{Name: "diagnostics", Commands: []string{"check"}},
		{Name: "info", Commands: []string{"version"}},
	}
	if !reflect.DeepEqual(resp.Groups, want) {
		t.Errorf("groups = %+v, want %+v", resp.Groups, want)
	}

	names := map[string]string{}
	for _, c := range resp.Commands {
		names[c.Name] = c.Group
	}
	for _, name := range []string{"exec", "resolve", "check", "version"} {
		if _, ok := names[name]; !ok {
			t.Errorf("command %q missing from commands", name)
		}
	}

	if _, ok := findFlag(resp.GlobalFlags, "config"); !ok {
		t.Error("global flags should include --config")
	}
}

func TestHelpJSON_ResolveFlags(t *testing.T) {
	out, err := runHelp(t, "resolve", "--json")
	if err != nil {
		t.Fatalf("help resolve --json: %v", err)
	}
	resp := decodeHelp(t, out)

	if resp.Topic == nil {
		t.Fatal("expected command metadata")
	}
	if resp.Topic.Name != "resolve" || resp.Topic.Group != "correlation" {
		t.Errorf("command = %s (%s), want resolve (correlation)", resp.Topic.Name, resp.Topic.Group)
	}
	if resp.Groups != nil {
		t.Errorf("single command help should not list groups, got %+v", resp.Groups)
	}

	tests := []struct {
		flag     string
		env      string
		required bool
	}{
		{flag: "step", env: "ETLTRACE_JOB_STEP", required: true},
		{flag: "trace-id", env: "ETLTRACE_JOB_TRACE_ID", required: true},
		{flag: "header", env: "", required: false},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			f, ok := findFlag(resp.Topic.Flags, tt.flag)
			if !ok {
				t.Fatalf("flag --%s missing", tt.flag)
			}
			if f.Env != tt.env {
				t.Errorf("env = %q, want %q", f.Env, tt.env)
			}
			if f.Required != tt.required {
				t.Errorf("required = %v, want %v", f.Required, tt.required)
			}
		})
	}

	if _, ok := findFlag(resp.Topic.Flags, "verbose"); ok {
		t.Error("global flags should not be repeated in command flags")
	}
}

func TestHelpJSON_ExecFlagsFallBackToEnv(t *testing.T) {
	out, err := runHelp(t, "exec", "--json")
	if err != nil {
		t.Fatalf("help exec --json: %v", err)
	}
	resp := decodeHelp(t, out)

	want := map[string]string{
		"trace-id":         "ETLTRACE_JOB_TRACE_ID",
		"step":             "ETLTRACE_JOB_STEP",
		"job-name":         "ETLTRACE_JOB_NAME",
		"metrics-textfile": "ETLTRACE_JOB_METRICS_TEXTFILE",
	}
	for name, env := range want {
		f, ok := findFlag(resp.Topic.Flags, name)
		if !ok {
			t.Errorf("flag --%s missing", name)
			continue
		}
		if f.Env != env {
			t.Errorf("--%s env = %q, want %q", name, f.Env, env)
		}
		// exec runs the job untraced when no trace id is known
		if f.Required {
			t.Errorf("--%s should not be required for exec", name)
		}
	}
}

func TestHelp_Overview(t *testing.T) {
	out, err := runHelp(t)
	if err != nil {
		t.Fatalf("help: %v", err)
	}

	for _, want := range []string{
		"Correlation commands:",
		"exec",
		"Run a job under a span nested in the orchestrator trace",
		"Diagnostics commands:",
		"check",
		"Info commands:",
		"Global flags:",
		"--config",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("overview missing %q:\n%s", want, out)
		}
	}

	if strings.Index(out, "Correlation commands:") > strings.Index(out, "Diagnostics commands:") {
		t.Error("correlation commands should be listed before diagnostics")
	}
}

func TestHelp_CommandUsage(t *testing.T) {
	out, err := runHelp(t, "resolve")
	if err != nil {
		t.Fatalf("help resolve: %v", err)
	}
	if !strings.Contains(out, "--step") || !strings.Contains(out, "etltrace resolve") {
		t.Errorf("resolve help missing usage:\n%s", out)
	}
}

func TestHelp_UnknownCommand(t *testing.T) {
	_, err := runHelp(t, "replay")
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if code := shared.ExitCodeFor(err); code != shared.ExitUsage {
		t.Errorf("exit code = %d, want %d", code, shared.ExitUsage)
	}
}
