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

package tracing

import (
	"context"
	"os"

	"github.com/google/uuid"
)

// CorrelationID ties the log lines of one job run together, including
// those written by a wrapped child process.
type CorrelationID string

type correlationKeyType struct{}

var correlationKey = correlationKeyType{}

// EnvCorrelationID passes the correlation ID to child processes.
const EnvCorrelationID = "ETLTRACE_CORRELATION_ID"

// NewCorrelationID generates a new random correlation ID.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.New().String())
}

func (c CorrelationID) String() string {
	return string(c)
}

// IsValid reports whether the ID is a well-formed UUID.
func (c CorrelationID) IsValid() bool {
	_, err := uuid.Parse(string(c))
	return err == nil && len(c) == 36
}

// ToContext stores the correlation ID in ctx.
func ToContext(ctx context.Context, id CorrelationID) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// FromContext returns the stored correlation ID, or "" if none is set.
func FromContext(ctx context.Context) CorrelationID {
	if id, ok := ctx.Value(correlationKey).(CorrelationID); ok {
		return id
	}
	return ""
}

// CorrelationIDFromEnv reuses a valid ID inherited from a parent process
// and otherwise generates a new one.
func CorrelationIDFromEnv() CorrelationID {
	if id := CorrelationID(os.Getenv(EnvCorrelationID)); id.IsValid() {
		return id
	}
	return NewCorrelationID()
}

// Env renders the ID as an environment variable assignment.
func (c CorrelationID) Env() string {
	return EnvCorrelationID + "=" + string(c)
}
