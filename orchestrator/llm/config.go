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
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"
)

// DefaultOllamaEndpoint is the hardcoded safe default used when no backend
// configuration can be resolved, and as the auto-mode fallback target.
const DefaultOllamaEndpoint = "http://localhost:11434"

// DefaultConfigTTL is how long a fetched backend config stays valid.
const DefaultConfigTTL = 60 * time.Second

// BackendConfig is the per-model inference backend configuration.
// Entries are created and updated by an external admin system; the
// orchestrator only ever reads them.
type BackendConfig struct {
	ModelName   string        `json:"model_name"`
	Kind        BackendKind   `json:"backend_kind"`
	Endpoint    string        `json:"endpoint"`
	Enabled     bool          `json:"enabled"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"default_temperature"`
	Timeout     time.Duration `json:"-"`
}

// backendConfigWire is the JSON shape served by the external config store.
type backendConfigWire struct {
	ModelName      string  `json:"model_name"`
	BackendKind    string  `json:"backend_kind"`
	Endpoint       string  `json:"endpoint"`
	Enabled        bool    `json:"enabled"`
	MaxTokens      int     `json:"max_tokens"`
	Temperature    float64 `json:"default_temperature"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// DefaultBackendConfig returns the hardcoded safe default for a model.
func DefaultBackendConfig(model string) *BackendConfig {
	return &BackendConfig{
		ModelName:   model,
		Kind:        BackendOllama,
		Endpoint:    DefaultOllamaEndpoint,
		Enabled:     true,
		MaxTokens:   1024,
		Temperature: 0.7,
		Timeout:     120 * time.Second,
	}
}

// ConfigSource resolves a model name to its backend configuration.
type ConfigSource interface {
	BackendFor(ctx context.Context, model string) (*BackendConfig, error)
}

// StaticConfigSource always returns the hardcoded safe default. It is both
// the zero-dependency deployment mode and the degradation target when the
// external store is unreachable.
type StaticConfigSource struct{}

// BackendFor returns the default config for any model. It never fails.
func (StaticConfigSource) BackendFor(_ context.Context, model string) (*BackendConfig, error) {
	return DefaultBackendConfig(model), nil
}

// HTTPConfigSource fetches backend configuration from the external config
// store. Fetch failures are returned as errors; graceful degradation is the
// CachingConfigSource's job, not this client's.
type HTTPConfigSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPConfigSource creates a config client for the given store base URL.
func NewHTTPConfigSource(baseURL string) *HTTPConfigSource {
	return &HTTPConfigSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// BackendFor fetches GET {base}/backends/model/{model} and decodes the entry.
func (s *HTTPConfigSource) BackendFor(ctx context.Context, model string) (*BackendConfig, error) {
	endpoint := fmt.Sprintf("%s/backends/model/%s", s.baseURL, url.PathEscape(model))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build config request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("config store unreachable: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[ConfigSource] Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("no backend config for model %q", model)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("config store returned status %d: %s", resp.StatusCode, string(body))
	}

	var wire backendConfigWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("malformed config response: %w", err)
	}

	cfg := &BackendConfig{
		ModelName:   model,
		Kind:        BackendKind(wire.BackendKind),
		Endpoint:    wire.Endpoint,
		Enabled:     wire.Enabled,
		MaxTokens:   wire.MaxTokens,
		Temperature: wire.Temperature,
		Timeout:     time.Duration(wire.TimeoutSeconds) * time.Second,
	}
	if wire.ModelName != "" {
		cfg.ModelName = wire.ModelName
	}
	applyConfigDefaults(cfg)

	switch cfg.Kind {
	case BackendOllama, BackendOpenAI, BackendAuto:
	default:
		return nil, fmt.Errorf("unknown backend kind %q for model %q", wire.BackendKind, model)
	}

	return cfg, nil
}

// applyConfigDefaults fills gaps the store is allowed to leave empty.
func applyConfigDefaults(cfg *BackendConfig) {
	def := DefaultBackendConfig(cfg.ModelName)
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
}

// cacheEntry is a cached backend config with its expiry timestamp. Entries
// are immutable once stored; an entry is used for all requests until the
// expiry passes, with no mid-flight invalidation.
type cacheEntry struct {
	config    *BackendConfig
	expiresAt time.Time
}

func (e *cacheEntry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// CacheStats tracks config cache performance.
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Fetches int64 `json:"fetches"`
}

// CachingConfigSource wraps a primary ConfigSource with a TTL cache and
// absorbs every primary failure into the hardcoded safe default. Its
// BackendFor never returns an error.
//
// Concurrent refreshes of the same expired key are tolerated rather than
// deduplicated: each racer fetches and stores its own entry, and whichever
// write lands last wins. Entries are immutable for their window, so the
// duplicate fetch is the only cost.
type CachingConfigSource struct {
	primary ConfigSource
	ttl     time.Duration
	logger  *log.Logger

	mu      sync.RWMutex
	entries map[string]*cacheEntry

	statsMu sync.Mutex
	stats   CacheStats
}

// NewCachingConfigSource creates a caching source over primary. A ttl of 0
// uses DefaultConfigTTL.
func NewCachingConfigSource(primary ConfigSource, ttl time.Duration) *CachingConfigSource {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	return &CachingConfigSource{
		primary: primary,
		ttl:     ttl,
		logger:  log.New(os.Stdout, "[ConfigCache] ", log.LstdFlags),
		entries: make(map[string]*cacheEntry),
	}
}

// BackendFor returns the cached config for model, refreshing from the
// primary source on expiry. Any primary failure resolves to the safe
// default without caching it, so the store is retried on the next call.
func (c *CachingConfigSource) BackendFor(ctx context.Context, model string) (*BackendConfig, error) {
	c.mu.RLock()
	entry, ok := c.entries[model]
	c.mu.RUnlock()

	if ok && !entry.expired() {
		c.recordHit()
		return entry.config, nil
	}
	c.recordMiss()

	cfg, err := c.primary.BackendFor(ctx, model)
	if err != nil {
		c.logger.Printf("WARN: config fetch for model %q failed, using default backend: %v", model, err)
		return DefaultBackendConfig(model), nil
	}

	c.statsMu.Lock()
	c.stats.Fetches++
	c.statsMu.Unlock()

	c.mu.Lock()
	c.entries[model] = &cacheEntry{
		config:    cfg,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()

	return cfg, nil
}

// Stats returns a snapshot of cache performance counters.
func (c *CachingConfigSource) Stats() CacheStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *CachingConfigSource) recordHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
}

func (c *CachingConfigSource) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}
