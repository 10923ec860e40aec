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
	"fmt"
	"net/http"
	"sync"
	"time"

	"hearth/shared/logger"
)

// Router resolves model names to backend configurations and dispatches
// generation requests to the right engine protocol.
type Router struct {
	configs ConfigSource
	log     *logger.Logger

	metricsMu sync.Mutex
	metrics   map[BackendKind]*backendStats
}

type backendStats struct {
	requests  int64
	errors    int64
	totalTime time.Duration
}

// NewRouter creates a router over the given config source.
func NewRouter(configs ConfigSource) *Router {
	return &Router{
		configs: configs,
		log:     logger.New("llm-router"),
		metrics: make(map[BackendKind]*backendStats),
	}
}

// Generate resolves the backend for model and dispatches the prompt to it.
// In auto mode the OpenAI-compatible endpoint is tried first and the default
// local Ollama endpoint exactly once after that; there is no retry loop.
func (r *Router) Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (*Result, error) {
	cfg, err := r.configs.BackendFor(ctx, model)
	if err != nil {
		// Only reachable with a non-caching source wired directly.
		return nil, fmt.Errorf("failed to resolve backend for model %q: %w", model, err)
	}

	if !cfg.Enabled {
		return nil, &DispatchError{
			Backend:  cfg.Kind,
			Endpoint: cfg.Endpoint,
			Message:  fmt.Sprintf("model %q is disabled", model),
		}
	}

	temperature := cfg.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := cfg.MaxTokens
	if opts.MaxTokens != nil && *opts.MaxTokens > 0 && *opts.MaxTokens < cfg.MaxTokens {
		maxTokens = *opts.MaxTokens
	}

	client := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Kind {
	case BackendOllama:
		return r.dispatch(ctx, client, cfg, BackendOllama, cfg.Endpoint, prompt, temperature, maxTokens)

	case BackendOpenAI:
		return r.dispatch(ctx, client, cfg, BackendOpenAI, cfg.Endpoint, prompt, temperature, maxTokens)

	case BackendAuto:
		return r.dispatchAuto(ctx, client, cfg, prompt, temperature, maxTokens)

	default:
		return nil, fmt.Errorf("unknown backend kind %q for model %q", cfg.Kind, model)
	}
}

// dispatchAuto tries the configured OpenAI-compatible endpoint, then falls
// back once to the default local Ollama endpoint. Both failures are reported
// together so callers can see why each attempt died.
func (r *Router) dispatchAuto(ctx context.Context, client *http.Client, cfg *BackendConfig, prompt string, temperature float64, maxTokens int) (*Result, error) {
	result, primaryErr := r.dispatch(ctx, client, cfg, BackendOpenAI, cfg.Endpoint, prompt, temperature, maxTokens)
	if primaryErr == nil {
		return result, nil
	}

	// Give the fallback nothing if the caller is already gone.
	if ctx.Err() != nil {
		return nil, primaryErr
	}

	r.log.Warn("", "", "Primary backend failed, trying fallback", map[string]interface{}{
		"model":    cfg.ModelName,
		"endpoint": cfg.Endpoint,
		"error":    primaryErr.Error(),
	})

	result, fallbackErr := r.dispatch(ctx, client, cfg, BackendOllama, DefaultOllamaEndpoint, prompt, temperature, maxTokens)
	if fallbackErr == nil {
		return result, nil
	}

	return nil, fmt.Errorf("all backends failed for model %q: primary: %v; fallback: %v",
		cfg.ModelName, primaryErr, fallbackErr)
}

// dispatch routes a single attempt to the engine protocol and records
// per-backend metrics for it.
func (r *Router) dispatch(ctx context.Context, client *http.Client, cfg *BackendConfig, kind BackendKind, endpoint, prompt string, temperature float64, maxTokens int) (*Result, error) {
	start := time.Now()

	var result *Result
	var err error
	switch kind {
	case BackendOllama:
		result, err = dispatchOllama(ctx, client, cfg, endpoint, prompt, temperature, maxTokens)
	case BackendOpenAI:
		result, err = dispatchOpenAI(ctx, client, cfg, endpoint, prompt, temperature, maxTokens)
	default:
		return nil, fmt.Errorf("unsupported dispatch kind %q", kind)
	}

	r.record(kind, time.Since(start), err != nil)
	return result, err
}

func (r *Router) record(kind BackendKind, elapsed time.Duration, failed bool) {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()

	stats, ok := r.metrics[kind]
	if !ok {
		stats = &backendStats{}
		r.metrics[kind] = stats
	}
	stats.requests++
	stats.totalTime += elapsed
	if failed {
		stats.errors++
	}
}

// BackendStatus returns per-backend call metrics accumulated since startup.
func (r *Router) BackendStatus() map[BackendKind]BackendMetrics {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()

	out := make(map[BackendKind]BackendMetrics, len(r.metrics))
	for kind, stats := range r.metrics {
		m := BackendMetrics{
			RequestCount: stats.requests,
			ErrorCount:   stats.errors,
		}
		if stats.requests > 0 {
			m.AvgResponseTime = float64(stats.totalTime.Milliseconds()) / float64(stats.requests)
		}
		out[kind] = m
	}
	return out
}
