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

// Package airports provides the retrieval provider for airport delay and
// flight status information.
package airports

import (
	"context"
	"time"

	"hearth/connectors/base"
)

// Provider fetches airport status from an external aviation API.
type Provider struct {
	api     *base.APIClient
	timeout time.Duration
}

// Config holds the airports provider's connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New creates an airports provider for the given API.
func New(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = base.DefaultTimeout
	}
	return &Provider{
		api:     base.NewAPIClient("airports", cfg.BaseURL, cfg.APIKey, cfg.Timeout),
		timeout: cfg.Timeout,
	}
}

// Name returns the provider instance name.
func (p *Provider) Name() string { return "airports" }

// Intents returns the intent labels this provider serves.
func (p *Provider) Intents() []string { return []string{"airports", "travel"} }

// Timeout returns the per-fetch deadline.
func (p *Provider) Timeout() time.Duration { return p.timeout }

// Fetch retrieves delay and status data for airports mentioned in the query.
func (p *Provider) Fetch(ctx context.Context, query *base.Query) (*base.Result, error) {
	start := time.Now()

	params := map[string]string{"q": query.Text}
	if code, ok := query.Parameters["airport"].(string); ok && code != "" {
		params["airport"] = code
	}

	rows, err := p.api.GetJSON(ctx, "/v1/status", params)
	if err != nil {
		return nil, err
	}

	return &base.Result{
		Provider: p.Name(),
		Intent:   query.Intent,
		Rows:     rows,
		Duration: time.Since(start),
	}, nil
}

// HealthCheck verifies the aviation API is reachable.
func (p *Provider) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return p.api.CheckHealth(ctx, "/health")
}
