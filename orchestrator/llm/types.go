// Copyright 2025 Hearth
// SPDX-License-Identifier: Apache-2.0
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package llm provides the backend router that resolves a model name to a
// configured inference backend and dispatches generation requests to it.
// Two concrete engine protocols are supported (Ollama-style and
// OpenAI-compatible completion), plus an auto mode with a single bounded
// fallback attempt.
package llm

import (
	"fmt"
	"time"
)

// BackendKind identifies the inference engine protocol a model is served by.
type BackendKind string

const (
	// BackendOllama is the fixed-format, non-chat completion protocol
	// (POST {endpoint}/api/generate).
	BackendOllama BackendKind = "ollama"

	// BackendOpenAI is the OpenAI-compatible completion protocol
	// (POST {endpoint}/v1/completions), as served by vLLM and similar.
	BackendOpenAI BackendKind = "openai"

	// BackendAuto tries the OpenAI-compatible endpoint first and falls
	// back once to the default local Ollama endpoint on any error.
	BackendAuto BackendKind = "auto"
)

// GenerateOptions carries per-call overrides for generation parameters.
// Nil fields fall back to the model's configured defaults.
type GenerateOptions struct {
	Temperature *float64
	MaxTokens   *int
}

// Result contains the outcome of a successful generation.
type Result struct {
	// Text is the generated completion.
	Text string `json:"text"`

	// Backend is the engine kind that actually answered. For auto-mode
	// requests this is the engine the request ultimately landed on.
	Backend BackendKind `json:"backend"`

	// Model is the model name the request was resolved for.
	Model string `json:"model"`

	// TokensUsed is the completion token count reported by the engine
	// (0 when the engine does not report usage).
	TokensUsed int `json:"tokens_used"`

	// Latency is the wall-clock time of the winning dispatch attempt.
	Latency time.Duration `json:"latency"`
}

// DispatchError describes a failed dispatch attempt against one engine.
type DispatchError struct {
	Backend    BackendKind
	Endpoint   string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s dispatch to %s failed (status %d): %s", e.Backend, e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s dispatch to %s failed: %s", e.Backend, e.Endpoint, e.Message)
}

// Unwrap returns the underlying error.
func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// BackendMetrics contains per-backend call metrics.
type BackendMetrics struct {
	RequestCount    int64   `json:"request_count"`
	ErrorCount      int64   `json:"error_count"`
	AvgResponseTime float64 `json:"avg_response_time_ms"`
}
