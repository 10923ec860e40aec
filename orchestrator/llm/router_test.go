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

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource returns the same config for every model.
type fixedSource struct {
	cfg *BackendConfig
}

func (f fixedSource) BackendFor(context.Context, string) (*BackendConfig, error) {
	return f.cfg, nil
}

func ollamaTestServer(t *testing.T, onRequest func(req ollamaRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if onRequest != nil {
			onRequest(req)
		}
		json.NewEncoder(w).Encode(ollamaResponse{
			Response:  "The weather in Baltimore is sunny.",
			Done:      true,
			EvalCount: 42,
		})
	}))
}

func openaiTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/completions", r.URL.Path)
		w.Write([]byte(`{"choices":[{"text":"completion text","finish_reason":"stop"}],"usage":{"completion_tokens":17}}`))
	}))
}

func TestGenerateOllama(t *testing.T) {
	var captured ollamaRequest
	srv := ollamaTestServer(t, func(req ollamaRequest) { captured = req })
	defer srv.Close()

	cfg := DefaultBackendConfig("llama3")
	cfg.Endpoint = srv.URL
	router := NewRouter(fixedSource{cfg})

	result, err := router.Generate(context.Background(), "llama3", "what is the weather?", GenerateOptions{})
	require.NoError(t, err)

	assert.Equal(t, "The weather in Baltimore is sunny.", result.Text)
	assert.Equal(t, BackendOllama, result.Backend)
	assert.Equal(t, "llama3", result.Model)
	assert.Equal(t, 42, result.TokensUsed)
	assert.Greater(t, result.Latency, time.Duration(0))

	assert.Equal(t, "llama3", captured.Model)
	assert.False(t, captured.Stream, "router must request non-streaming generation")
	assert.Equal(t, cfg.Temperature, captured.Options.Temperature)
	assert.Equal(t, cfg.MaxTokens, captured.Options.NumPredict)
}

func TestGenerateOpenAI(t *testing.T) {
	srv := openaiTestServer(t)
	defer srv.Close()

	cfg := DefaultBackendConfig("mistral-7b")
	cfg.Kind = BackendOpenAI
	cfg.Endpoint = srv.URL
	router := NewRouter(fixedSource{cfg})

	result, err := router.Generate(context.Background(), "mistral-7b", "hello", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "completion text", result.Text)
	assert.Equal(t, BackendOpenAI, result.Backend)
	assert.Equal(t, 17, result.TokensUsed)
}

func TestGenerateOptionsOverrideConfigDefaults(t *testing.T) {
	var captured ollamaRequest
	srv := ollamaTestServer(t, func(req ollamaRequest) { captured = req })
	defer srv.Close()

	cfg := DefaultBackendConfig("llama3")
	cfg.Endpoint = srv.URL
	cfg.MaxTokens = 1024
	router := NewRouter(fixedSource{cfg})

	temp := 0.2
	maxTokens := 64
	_, err := router.Generate(context.Background(), "llama3", "classify this", GenerateOptions{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.2, captured.Options.Temperature)
	assert.Equal(t, 64, captured.Options.NumPredict)
}

func TestGenerateMaxTokensCappedByConfig(t *testing.T) {
	var captured ollamaRequest
	srv := ollamaTestServer(t, func(req ollamaRequest) { captured = req })
	defer srv.Close()

	cfg := DefaultBackendConfig("llama3")
	cfg.Endpoint = srv.URL
	cfg.MaxTokens = 256
	router := NewRouter(fixedSource{cfg})

	over := 99999
	_, err := router.Generate(context.Background(), "llama3", "go long", GenerateOptions{MaxTokens: &over})
	require.NoError(t, err)

	assert.Equal(t, 256, captured.Options.NumPredict, "per-call max_tokens must not exceed the configured ceiling")
}

func TestGenerateDisabledModel(t *testing.T) {
	cfg := DefaultBackendConfig("llama3")
	cfg.Enabled = false
	router := NewRouter(fixedSource{cfg})

	_, err := router.Generate(context.Background(), "llama3", "hello", GenerateOptions{})
	require.Error(t, err)

	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Contains(t, dispatchErr.Message, "disabled")
}

func TestGenerateExplicitModePropagatesEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultBackendConfig("llama3")
	cfg.Endpoint = srv.URL
	router := NewRouter(fixedSource{cfg})

	_, err := router.Generate(context.Background(), "llama3", "hello", GenerateOptions{})
	require.Error(t, err)

	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Equal(t, BackendOllama, dispatchErr.Backend)
	assert.Equal(t, http.StatusServiceUnavailable, dispatchErr.StatusCode)

	// Explicit mode never falls back.
	status := router.BackendStatus()
	assert.Equal(t, int64(1), status[BackendOllama].RequestCount)
	_, touched := status[BackendOpenAI]
	assert.False(t, touched)
}

func TestGenerateAutoFallsBackOnceToOllama(t *testing.T) {
	// Primary: an OpenAI-compatible endpoint that always fails.
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend overloaded", http.StatusBadGateway)
	}))
	defer primary.Close()

	cfg := DefaultBackendConfig("llama3")
	cfg.Kind = BackendAuto
	cfg.Endpoint = primary.URL
	router := NewRouter(fixedSource{cfg})

	// Fallback targets the fixed default endpoint, which is unreachable in
	// tests, so the request fails after exactly one fallback attempt.
	_, err := router.Generate(context.Background(), "llama3", "hello", GenerateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all backends failed")
	assert.Contains(t, err.Error(), "primary")
	assert.Contains(t, err.Error(), "fallback")

	status := router.BackendStatus()
	assert.Equal(t, int64(1), status[BackendOpenAI].RequestCount, "exactly one primary attempt")
	assert.Equal(t, int64(1), status[BackendOllama].RequestCount, "exactly one fallback attempt")
	assert.Equal(t, int64(1), status[BackendOpenAI].ErrorCount)
	assert.Equal(t, int64(1), status[BackendOllama].ErrorCount)
}

func TestGenerateAutoPrimarySuccessSkipsFallback(t *testing.T) {
	srv := openaiTestServer(t)
	defer srv.Close()

	cfg := DefaultBackendConfig("llama3")
	cfg.Kind = BackendAuto
	cfg.Endpoint = srv.URL
	router := NewRouter(fixedSource{cfg})

	result, err := router.Generate(context.Background(), "llama3", "hello", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, BackendOpenAI, result.Backend)

	status := router.BackendStatus()
	_, touched := status[BackendOllama]
	assert.False(t, touched, "fallback must not run when primary succeeds")
}

func TestBackendStatusAveragesLatency(t *testing.T) {
	srv := ollamaTestServer(t, nil)
	defer srv.Close()

	cfg := DefaultBackendConfig("llama3")
	cfg.Endpoint = srv.URL
	router := NewRouter(fixedSource{cfg})

	for i := 0; i < 3; i++ {
		_, err := router.Generate(context.Background(), "llama3", "hi", GenerateOptions{})
		require.NoError(t, err)
	}

	status := router.BackendStatus()
	assert.Equal(t, int64(3), status[BackendOllama].RequestCount)
	assert.Equal(t, int64(0), status[BackendOllama].ErrorCount)
	assert.GreaterOrEqual(t, status[BackendOllama].AvgResponseTime, float64(0))
}
