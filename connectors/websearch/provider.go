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

// Package websearch provides the general-purpose retrieval provider backed
// by a web search API. It is the catch-all source for the "general" intent.
package websearch

import (
	"context"
	"strconv"
	"time"

	"hearth/connectors/base"
)

// DefaultMaxResults bounds how many search hits a single fetch returns.
const DefaultMaxResults = 5

// Provider fetches search results from an external web search API.
type Provider struct {
	api        *base.APIClient
	timeout    time.Duration
	maxResults int
}

// Config holds the websearch provider's connection settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxResults int
}

// New creates a websearch provider for the given API.
func New(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = base.DefaultTimeout
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	return &Provider{
		api:        base.NewAPIClient("websearch", cfg.BaseURL, cfg.APIKey, cfg.Timeout),
		timeout:    cfg.Timeout,
		maxResults: cfg.MaxResults,
	}
}

// Name returns the provider instance name.
func (p *Provider) Name() string { return "websearch" }

// Intents returns the intent labels this provider serves. It is the only
// provider registered for "general".
func (p *Provider) Intents() []string { return []string{"general", "news"} }

// Timeout returns the per-fetch deadline.
func (p *Provider) Timeout() time.Duration { return p.timeout }

// Fetch runs a web search for the query text and returns the top hits.
func (p *Provider) Fetch(ctx context.Context, query *base.Query) (*base.Result, error) {
	start := time.Now()

	rows, err := p.api.GetJSON(ctx, "/search", map[string]string{
		"q":     query.Text,
		"limit": strconv.Itoa(p.maxResults),
	})
	if err != nil {
		return nil, err
	}
	if len(rows) > p.maxResults {
		rows = rows[:p.maxResults]
	}

	return &base.Result{
		Provider: p.Name(),
		Intent:   query.Intent,
		Rows:     rows,
		Duration: time.Since(start),
	}, nil
}

// HealthCheck verifies the search API is reachable.
func (p *Provider) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return p.api.CheckHealth(ctx, "/health")
}
