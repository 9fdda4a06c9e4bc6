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
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aws-samples/tracing-etl-workloads-otel/internal/commands/shared"
)

// groupOrder is the order command groups are listed in help output.
var groupOrder = []string{"correlation", "diagnostics", "info"}

// CommandMetadata describes one command in the JSON help output.
type CommandMetadata struct {
	Name     string         `json:"name"`
	Short    string         `json:"short"`
	Long     string         `json:"long,omitempty"`
	Usage    string         `json:"usage"`
	Group    string         `json:"group,omitempty"`
	Flags    []FlagMetadata `json:"flags,omitempty"`
	Examples string         `json:"examples,omitempty"`
}

// FlagMetadata describes one flag. Env names the environment variable the
// flag falls back to; Required flags must come from the flag or Env.
type FlagMetadata struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Env       string `json:"env,omitempty"`
	Required  bool   `json:"required"`
}

// GroupMetadata lists the commands of one group.
type GroupMetadata struct {
	Name     string   `json:"name"`
	Commands []string `json:"commands"`
}

// HelpResponse is the JSON response for help command. Topic is set when
// help describes a single command.
type HelpResponse struct {
	shared.JSONResponse
	Groups      []GroupMetadata   `json:"groups,omitempty"`
	Commands    []CommandMetadata `json:"commands,omitempty"`
	Topic       *CommandMetadata  `json:"topic,omitempty"`
	GlobalFlags []FlagMetadata    `json:"global_flags,omitempty"`
}

// NewHelpCommand creates the help command
func NewHelpCommand(rootCmd *cobra.Command) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long: `Help lists the etltrace commands by group, or describes one command.

Run 'etltrace help' to see all available commands.
Run 'etltrace help <command>' to see detailed help for a specific command.
Use the --json flag to get machine-readable output, including the
environment variable behind each flag.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			useJSON := shared.GetJSON() || jsonOutput
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				if useJSON {
					return shared.EmitJSON(out, HelpResponse{
						JSONResponse: shared.NewJSONResponse("help"),
						Groups:       commandGroups(rootCmd),
						Commands:     visibleCommands(rootCmd),
						GlobalFlags:  flagMetadata(rootCmd.PersistentFlags()),
					})
				}
				return writeOverview(out, rootCmd)
			}

			targetCmd, rest, err := rootCmd.Find(args)
			if err != nil || targetCmd == rootCmd || len(rest) > 0 {
				return shared.NewUsageError(fmt.Sprintf("unknown command %q", strings.Join(args, " ")), err)
			}

			if useJSON {
				metadata := commandMetadata(targetCmd)
				return shared.EmitJSON(out, HelpResponse{
					JSONResponse: shared.NewJSONResponse("help " + targetCmd.Name()),
					Topic:        &metadata,
					GlobalFlags:  flagMetadata(rootCmd.PersistentFlags()),
				})
			}
			return targetCmd.Help()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

// writeOverview prints the root description and the commands by group.
func writeOverview(w io.Writer, rootCmd *cobra.Command) error {
	var b strings.Builder
	b.WriteString(rootCmd.Long)
	b.WriteString("\n")

	byName := map[string]*cobra.Command{}
	for _, c := range rootCmd.Commands() {
		byName[c.Name()] = c
	}
	for _, g := range commandGroups(rootCmd) {
		fmt.Fprintf(&b, "\n%s\n", shared.Header.Render(strings.ToUpper(g.Name[:1])+g.Name[1:]+" commands:"))
		for _, name := range g.Commands {
			fmt.Fprintf(&b, "  %-10s %s\n", name, byName[name].Short)
		}
	}

	fmt.Fprintf(&b, "\n%s\n%s", shared.Header.Render("Global flags:"), rootCmd.PersistentFlags().FlagUsages())
	fmt.Fprintf(&b, "\n%s\n", shared.Muted.Render("Run 'etltrace help <command>' for the flags of a command."))

	_, err := io.WriteString(w, b.String())
	return err
}

// commandGroups groups the visible commands by their "group" annotation.
// Known groups come first in groupOrder; commands without a group are left
// out.
func commandGroups(rootCmd *cobra.Command) []GroupMetadata {
	members := map[string][]string{}
	var extra []string
	for _, c := range rootCmd.Commands() {
		if c.Hidden {
			continue
		}
		group := c.Annotations["group"]
		if group == "" {
			continue
		}
		if _, seen := members[group]; !seen && !isKnownGroup(group) {
			extra = append(extra, group)
		}
		members[group] = append(members[group], c.Name())
	}

	var groups []GroupMetadata
	for _, name := range append(append([]string{}, groupOrder...), extra...) {
		if cmds := members[name]; len(cmds) > 0 {
			groups = append(groups, GroupMetadata{Name: name, Commands: cmds})
		}
	}
	return groups
}

func isKnownGroup(name string) bool {
	for _, g := range groupOrder {
		if g == name {
			return true
		}
	}
	return false
}

func visibleCommands(rootCmd *cobra.Command) []CommandMetadata {
	commands := []CommandMetadata{}
	for _, c := range rootCmd.Commands() {
		if !c.Hidden {
			commands = append(commands, commandMetadata(c))
		}
	}
	return commands
}

func commandMetadata(cmd *cobra.Command) CommandMetadata {
	return CommandMetadata{
		Name:     cmd.Name(),
		Short:    cmd.Short,
		Long:     cmd.Long,
		Usage:    cmd.UseLine(),
		Group:    cmd.Annotations["group"],
		Flags:    flagMetadata(cmd.LocalNonPersistentFlags()),
		Examples: cmd.Example,
	}
}

// flagMetadata reads the flags in fs along with the env and required
// annotations set by shared.BindEnv, shared.MarkRequired and cobra.
func flagMetadata(fs *pflag.FlagSet) []FlagMetadata {
	var flags []FlagMetadata
	fs.VisitAll(func(flag *pflag.Flag) {
		if flag.Hidden {
			return
		}
		md := FlagMetadata{
			Name:      flag.Name,
			Shorthand: flag.Shorthand,
			Usage:     flag.Usage,
			Default:   flag.DefValue,
		}
		if env := flag.Annotations[shared.AnnotationEnv]; len(env) > 0 {
			md.Env = env[0]
		}
		_, required := flag.Annotations[shared.AnnotationRequired]
		_, cobraRequired := flag.Annotations[cobra.BashCompOneRequiredFlag]
		md.Required = required || cobraRequired
		flags = append(flags, md)
	})
	return flags
}
