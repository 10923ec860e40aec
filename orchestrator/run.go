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

package orchestrator

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hearth/connectors/registry"
	"hearth/orchestrator/llm"
	"hearth/session"
)

// Run wires the orchestrator from the environment and serves until
// SIGINT/SIGTERM, then drains in-flight requests before exiting.
//
// Environment variables:
//
//	PORT                 - HTTP listen port (default: 8080)
//	CONFIG_STORE_URL     - backend config store base URL (optional; static defaults without it)
//	PROVIDERS_CONFIG     - path to the provider registry YAML (default: providers.yaml)
//	REDIS_URL            - session store URL (optional; sessions disabled without it)
//	DATABASE_URL         - Postgres audit trail DSN (optional; auditing disabled without it)
//	CLASSIFIER_MODEL     - model for intent classification (default: llama3.2:1b)
//	SYNTHESIZER_MODEL    - model for answer synthesis (default: llama3.1:8b)
//	VALIDATOR_MODEL      - model for the LLM validation pass (optional; rule checks only without it)
func Run() {
	port := getEnv("PORT", "8080")

	var configSource llm.ConfigSource = llm.StaticConfigSource{}
	if storeURL := os.Getenv("CONFIG_STORE_URL"); storeURL != "" {
		configSource = llm.NewCachingConfigSource(llm.NewHTTPConfigSource(storeURL), llm.DefaultConfigTTL)
	}
	router := llm.NewRouter(configSource)

	providersPath := getEnv("PROVIDERS_CONFIG", "providers.yaml")
	regCfg, err := registry.LoadConfig(providersPath)
	if err != nil {
		log.Fatalf("[Orchestrator] Failed to load provider config: %v", err)
	}
	reg, err := regCfg.Build()
	if err != nil {
		log.Fatalf("[Orchestrator] Failed to build provider registry: %v", err)
	}

	var sessions session.Store
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		store, err := session.NewRedisStoreFromURL(ctx, redisURL)
		cancel()
		if err != nil {
			log.Fatalf("[Orchestrator] Failed to connect session store: %v", err)
		}
		sessions = store
		defer func() { _ = store.Close() }()
	} else {
		log.Printf("[Orchestrator] REDIS_URL not set, multi-turn sessions disabled")
	}

	audit := NewAuditTrail(os.Getenv("DATABASE_URL"))
	defer func() { _ = audit.Close() }()

	promReg := prometheus.NewRegistry()
	metrics := NewMetrics(promReg)

	engine := NewEngine(EngineDeps{
		Classifier:  NewClassifier(router, getEnv("CLASSIFIER_MODEL", "llama3.2:1b")),
		Coordinator: NewCoordinator(reg),
		Synthesizer: NewSynthesizer(router, getEnv("SYNTHESIZER_MODEL", "llama3.1:8b")),
		Validator:   NewValidator(router, os.Getenv("VALIDATOR_MODEL")),
		Sessions:    sessions,
		Audit:       audit,
		Metrics:     metrics,
	})

	server := NewServer(ServerConfig{
		Addr:     ":" + port,
		Engine:   engine,
		Router:   router,
		Registry: reg,
		Sessions: sessions,
		Audit:    audit,
		Metrics:  metrics,
		PromReg:  promReg,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[Orchestrator] Received %v, shutting down", sig)
	case err := <-errCh:
		log.Fatalf("[Orchestrator] Server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Orchestrator] Shutdown error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
