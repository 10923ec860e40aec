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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MaxResponseSize caps a provider response body at 10MB.
const MaxResponseSize = 10 * 1024 * 1024

// APIClient is the shared HTTP plumbing for JSON retrieval APIs. Concrete
// providers embed it and supply path/parameter construction.
type APIClient struct {
	ProviderName string
	BaseURL      string
	APIKey       string
	KeyHeader    string
	Client       *http.Client
}

// NewAPIClient creates a JSON API client with the provider's timeout.
func NewAPIClient(providerName, baseURL, apiKey string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &APIClient{
		ProviderName: providerName,
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		APIKey:       apiKey,
		KeyHeader:    "X-API-Key",
		Client:       &http.Client{Timeout: timeout},
	}
}

// GetJSON issues a GET to path with the given query parameters and decodes
// the JSON response into rows.
func (c *APIClient) GetJSON(ctx context.Context, path string, params map[string]string) ([]map[string]interface{}, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	reqURL, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return nil, NewProviderError(c.ProviderName, "Fetch", "invalid URL path", err)
	}
	if len(params) > 0 {
		values := url.Values{}
		for key, val := range params {
			values.Set(key, val)
		}
		reqURL.RawQuery = values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, NewProviderError(c.ProviderName, "Fetch", "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set(c.KeyHeader, c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, NewProviderError(c.ProviderName, "Fetch", "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, NewProviderError(c.ProviderName, "Fetch", "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return nil, NewProviderError(c.ProviderName, "Fetch",
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg), nil)
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, NewProviderError(c.ProviderName, "Fetch", "response is not valid JSON", err)
	}

	return ToRows(decoded), nil
}

// CheckHealth issues a GET against healthPath and reports reachability.
func (c *APIClient) CheckHealth(ctx context.Context, healthPath string) (*HealthStatus, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+healthPath, nil)
	if err != nil {
		return &HealthStatus{Healthy: false, Error: err.Error(), Timestamp: time.Now()}, nil
	}
	if c.APIKey != "" {
		req.Header.Set(c.KeyHeader, c.APIKey)
	}

	resp, err := c.Client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return &HealthStatus{Healthy: false, Latency: latency, Error: err.Error(), Timestamp: time.Now()}, nil
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return &HealthStatus{
		Healthy:   resp.StatusCode >= 200 && resp.StatusCode < 400,
		Latency:   latency,
		Timestamp: time.Now(),
	}, nil
}

// ToRows normalizes a decoded JSON value into the row format every
// provider returns: arrays become one row per element, objects a single
// row, scalars a single {"value": v} row.
func ToRows(decoded interface{}) []map[string]interface{} {
	switch v := decoded.(type) {
	case []interface{}:
		rows := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if itemMap, ok := item.(map[string]interface{}); ok {
				rows = append(rows, itemMap)
			} else {
				rows = append(rows, map[string]interface{}{"value": item})
			}
		}
		return rows
	case map[string]interface{}:
		return []map[string]interface{}{v}
	default:
		return []map[string]interface{}{{"value": v}}
	}
}
