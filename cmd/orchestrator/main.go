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

// Package main is the entry point for the Hearth query orchestrator.
//
// The orchestrator ingests natural-language queries, classifies intent,
// fans out to retrieval providers, synthesizes an answer with a language
// model, and validates the answer against retrieved facts before
// returning it.
//
// Usage:
//
//	./orchestrator
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	CONFIG_STORE_URL - backend config store base URL (optional)
//	PROVIDERS_CONFIG - provider registry YAML path (default: providers.yaml)
//	REDIS_URL - session store URL (optional)
//	DATABASE_URL - PostgreSQL audit connection string (optional)
package main

import (
	"hearth/orchestrator"
)

func main() {
	orchestrator.Run()
}
