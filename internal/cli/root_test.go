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
	"strings"
	"testing"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "etltrace" {
		t.Errorf("expected use 'etltrace', got %q", cmd.Use)
	}
	if !cmd.SilenceErrors || !cmd.SilenceUsage {
		t.Error("root command should leave error reporting to HandleExitError")
	}
	for _, want := range []string{"etltrace exec --step", "etltrace resolve --step"} {
		if !strings.Contains(cmd.Long, want) {
			t.Errorf("long description should mention %q", want)
		}
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		name      string
		shorthand string
		usage     string
	}{
		{name: "verbose", shorthand: "v"},
		{name: "quiet", shorthand: "q"},
		{name: "json"},
		{name: "config", usage: "~/.config/etltrace/config.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := cmd.PersistentFlags().Lookup(tt.name)
			if f == nil {
				t.Fatalf("--%s not registered", tt.name)
			}
			if f.Shorthand != tt.shorthand {
				t.Errorf("shorthand = %q, want %q", f.Shorthand, tt.shorthand)
			}
			if tt.usage != "" && !strings.Contains(f.Usage, tt.usage) {
				t.Errorf("usage %q should mention %q", f.Usage, tt.usage)
			}
		})
	}
}

func TestCommandTree_InheritsGlobalFlags(t *testing.T) {
	root := newCommandTree()

	for _, name := range []string{"exec", "resolve", "check", "version"} {
		sub, _, err := root.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Fatalf("command %q not found: %v", name, err)
		}
		if sub.InheritedFlags().Lookup("config") == nil {
			t.Errorf("%s should inherit --config", name)
		}
	}
}

func TestVersionCommand_ReportsSetVersion(t *testing.T) {
	SetVersion("1.4.0", "9f8e7d6", "2025-11-03")
	t.Cleanup(func() { SetVersion("dev", "unknown", "unknown") })

	v, c, b := GetVersion()
	if v != "1.4.0" || c != "9f8e7d6" || b != "2025-11-03" {
		t.Errorf("GetVersion() = %q, %q, %q", v, c, b)
	}

	root := newCommandTree()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), "1.4.0") {
		t.Errorf("version output should include the version, got %q", out.String())
	}
}
