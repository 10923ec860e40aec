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

/*
Package orchestrator is the query orchestration engine: it takes one
natural-language query from the HTTP gateway and drives it through a fixed
pipeline to a validated answer.

# Pipeline

Every query moves through the stages

	Received → Classified → Retrieved → Synthesized → Validated → Complete

with Failed reachable from any stage on a hard error. The stages are:

  - Classifier: a small, low-temperature model maps the query to one or
    more intent labels from a closed set. Unusable output degrades to the
    "general" intent instead of failing the request.
  - Coordinator: intents fan out to their retrieval providers
    concurrently, each call bounded by its own timeout. Provider failures
    are isolated; the coordinator waits for every call to settle and
    returns whatever succeeded.
  - Synthesizer: a larger model produces the answer from the query,
    flattened conversation history, and retrieved data. This is the only
    stage whose failure aborts the request.
  - Validator: rule checks (plus an optional LLM cross-check) verify the
    answer against the retrieved facts. A failed pass zeroes confidence
    but still returns the answer.

# Sessions and Modes

Owner-mode requests read conversation history before synthesis and append
the completed turn afterwards. Guest-mode requests never touch session
state.

# Supporting Pieces

The llm subpackage resolves model names to inference backends and
dispatches generation requests. AuditTrail batch-writes query traces to
Postgres. Metrics exposes Prometheus collectors and a JSON snapshot.
Server is the HTTP gateway in front of the engine.
*/
package orchestrator
