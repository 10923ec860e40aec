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
	"sort"
	"sync"
	"time"

	"hearth/connectors/base"
	"hearth/connectors/registry"
	"hearth/shared/logger"
)

// ConfidenceFloor is the minimum intent confidence that triggers retrieval.
const ConfidenceFloor = 0.3

// Coordinator fans classified intents out to their providers concurrently
// and aggregates the settled results. Provider failures are isolated: one
// slow or broken provider never cancels its siblings or the overall fetch.
type Coordinator struct {
	registry *registry.Registry
	log      *logger.Logger
}

// NewCoordinator creates a coordinator over the provider registry.
func NewCoordinator(reg *registry.Registry) *Coordinator {
	return &Coordinator{
		registry: reg,
		log:      logger.New("retrieval"),
	}
}

// fetchJob is one scheduled provider call.
type fetchJob struct {
	provider base.Provider
	intent   string
}

// Fetch issues one request per matched provider concurrently, each bounded
// by the provider's own timeout, and waits for all of them to settle. The
// returned map always has one entry per scheduled provider, success or
// failure. Intents with no provider contribute nothing; an empty map is a
// valid outcome.
func (c *Coordinator) Fetch(ctx context.Context, sessionID, requestID, query string, intents []IntentResult) map[string]RetrievalResult {
	jobs := c.schedule(intents)
	if len(jobs) == 0 {
		return map[string]RetrievalResult{}
	}

	results := make([]RetrievalResult, len(jobs))
	var wg sync.WaitGroup
	wg.Add(len(jobs))

	for i, job := range jobs {
		go func(i int, job fetchJob) {
			defer wg.Done()
			results[i] = c.fetchOne(ctx, job, query)
		}(i, job)
	}
	wg.Wait()

	out := make(map[string]RetrievalResult, len(results))
	failed := 0
	for _, r := range results {
		out[r.Provider] = r
		if !r.Success {
			failed++
		}
	}

	c.log.Info(sessionID, requestID, "Retrieval settled", map[string]interface{}{
		"providers": len(out),
		"failed":    failed,
	})
	return out
}

// schedule resolves intents to provider calls. Intents below the confidence
// floor are skipped. A provider serving several matched intents is fetched
// once, for its highest-confidence intent.
func (c *Coordinator) schedule(intents []IntentResult) []fetchJob {
	ordered := make([]IntentResult, len(intents))
	copy(ordered, intents)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Confidence > ordered[j].Confidence
	})

	var jobs []fetchJob
	scheduled := make(map[string]bool)
	for _, intent := range ordered {
		if intent.Confidence < ConfidenceFloor {
			continue
		}
		for _, provider := range c.registry.ProvidersFor(intent.Label) {
			if scheduled[provider.Name()] {
				continue
			}
			scheduled[provider.Name()] = true
			jobs = append(jobs, fetchJob{provider: provider, intent: intent.Label})
		}
	}
	return jobs
}

// fetchOne runs a single provider call under its own deadline and converts
// the outcome, either way, into a RetrievalResult.
func (c *Coordinator) fetchOne(ctx context.Context, job fetchJob, query string) RetrievalResult {
	timeout := job.provider.Timeout()
	if timeout <= 0 {
		timeout = base.DefaultTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := job.provider.Fetch(fetchCtx, &base.Query{
		Text:   query,
		Intent: job.intent,
	})
	elapsed := time.Since(start)

	if err != nil {
		c.log.Warn("", "", "Provider fetch failed", map[string]interface{}{
			"provider": job.provider.Name(),
			"intent":   job.intent,
			"error":    err.Error(),
		})
		return RetrievalResult{
			Provider: job.provider.Name(),
			Intent:   job.intent,
			Success:  false,
			Error:    err.Error(),
			Duration: elapsed,
		}
	}

	return RetrievalResult{
		Provider: job.provider.Name(),
		Intent:   job.intent,
		Success:  true,
		Result:   result,
		Duration: elapsed,
	}
}
