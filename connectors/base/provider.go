// Copyright 2025 Hearth
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

package base

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single provider fetch unless the provider
// configures its own.
const DefaultTimeout = 2 * time.Second

// Provider is the uniform contract every retrieval source implements.
// Providers are read-only knowledge sources; the orchestrator depends only
// on this contract, never on a provider's internals.
type Provider interface {
	// Name is the unique provider instance name (used as the result key).
	Name() string

	// Intents lists the intent labels this provider can serve.
	Intents() []string

	// Timeout is the per-fetch deadline for this provider.
	Timeout() time.Duration

	// Fetch retrieves data relevant to the query. Implementations must
	// honor ctx cancellation and return structured rows, never prose.
	Fetch(ctx context.Context, query *Query) (*Result, error)

	// HealthCheck verifies the upstream API is reachable.
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}

// Query carries the retrieval request handed to a provider.
type Query struct {
	Text       string                 `json:"text"`
	Intent     string                 `json:"intent"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// Result contains structured data returned by one provider fetch.
type Result struct {
	Provider string                   `json:"provider"`
	Intent   string                   `json:"intent"`
	Rows     []map[string]interface{} `json:"rows"`
	Duration time.Duration            `json:"duration"`
}

// HealthStatus reports the health of a provider's upstream API.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ProviderError represents a failed provider operation.
type ProviderError struct {
	Provider  string
	Operation string
	Message   string
	Cause     error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Provider + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.Provider + "." + e.Operation + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, operation, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}
