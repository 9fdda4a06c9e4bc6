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
	"github.com/spf13/cobra"
)

// Flag annotations read by the help command.
const (
	// AnnotationEnv names the environment variable a flag falls back to.
	AnnotationEnv = "etltrace_env"

	// AnnotationRequired marks a flag whose value the command needs, from
	// the flag or its environment fallback.
	AnnotationRequired = "etltrace_required"
)

// BindEnv records that flag falls back to the environment variable env.
// The value itself is read by the config layer.
func BindEnv(cmd *cobra.Command, flag, env string) {
	_ = cmd.Flags().SetAnnotation(flag, AnnotationEnv, []string{env})
}

// MarkRequired records that the command needs a value for flag. Unlike
// cobra's MarkFlagRequired it does not reject a missing flag, since the
// environment may supply it.
func MarkRequired(cmd *cobra.Command, flag string) {
	_ = cmd.Flags().SetAnnotation(flag, AnnotationRequired, []string{"true"})
}
