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

package registry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"hearth/connectors/airports"
	"hearth/connectors/base"
	"hearth/connectors/sports"
	"hearth/connectors/weather"
	"hearth/connectors/websearch"
)

// ProviderSpec configures one retrieval provider instance.
type ProviderSpec struct {
	Type           string `yaml:"type"`
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxResults     int    `yaml:"max_results"`
}

// Config is the YAML shape of the provider registry configuration file.
type Config struct {
	Providers []ProviderSpec `yaml:"providers"`
}

// LoadConfig reads and validates a provider configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse provider config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every provider spec for required fields.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("provider config lists no providers")
	}

	seen := make(map[string]bool)
	for i, spec := range c.Providers {
		if spec.Type == "" {
			return fmt.Errorf("provider %d: type is required", i)
		}
		if seen[spec.Type] {
			return fmt.Errorf("provider %d: duplicate type %q", i, spec.Type)
		}
		seen[spec.Type] = true

		if spec.BaseURL == "" {
			return fmt.Errorf("provider %q: base_url is required", spec.Type)
		}
		if spec.TimeoutSeconds < 0 {
			return fmt.Errorf("provider %q: timeout_seconds must not be negative", spec.Type)
		}

		switch spec.Type {
		case "weather", "sports", "airports", "websearch":
		default:
			return fmt.Errorf("provider %q: unknown provider type", spec.Type)
		}
	}
	return nil
}

// Build constructs a registry with every configured provider registered.
// API keys are resolved from the environment at build time so the config
// file never holds secrets.
func (c *Config) Build() (*Registry, error) {
	reg := New()

	for _, spec := range c.Providers {
		apiKey := ""
		if spec.APIKeyEnv != "" {
			apiKey = os.Getenv(spec.APIKeyEnv)
		}
		timeout := time.Duration(spec.TimeoutSeconds) * time.Second

		var provider base.Provider
		switch spec.Type {
		case "weather":
			provider = weather.New(weather.Config{BaseURL: spec.BaseURL, APIKey: apiKey, Timeout: timeout})
		case "sports":
			provider = sports.New(sports.Config{BaseURL: spec.BaseURL, APIKey: apiKey, Timeout: timeout})
		case "airports":
			provider = airports.New(airports.Config{BaseURL: spec.BaseURL, APIKey: apiKey, Timeout: timeout})
		case "websearch":
			provider = websearch.New(websearch.Config{BaseURL: spec.BaseURL, APIKey: apiKey, Timeout: timeout, MaxResults: spec.MaxResults})
		default:
			return nil, fmt.Errorf("unknown provider type %q", spec.Type)
		}

		if err := reg.Register(provider); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
