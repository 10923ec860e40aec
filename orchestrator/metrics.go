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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks pipeline counters twice over: Prometheus collectors for
// scraping and a mutex-guarded snapshot for the JSON /metrics endpoint.
type Metrics struct {
	queriesTotal     *prometheus.CounterVec
	queryDuration    prometheus.Histogram
	retrievalsTotal  *prometheus.CounterVec
	retrievalSeconds *prometheus.HistogramVec
	fallbacksTotal   prometheus.Counter

	mu       sync.RWMutex
	snapshot MetricsSnapshot
	started  time.Time
}

// MetricsSnapshot is the JSON shape served by the /metrics endpoint.
type MetricsSnapshot struct {
	UptimeSeconds           int64            `json:"uptime_seconds"`
	QueriesTotal            int64            `json:"queries_total"`
	QueriesComplete         int64            `json:"queries_complete"`
	QueriesFailed           int64            `json:"queries_failed"`
	AvgQueryTimeMS          float64          `json:"avg_query_time_ms"`
	ClassificationFallbacks int64            `json:"classification_fallbacks"`
	RetrievalsByProvider    map[string]int64 `json:"retrievals_by_provider"`
	RetrievalFailures       map[string]int64 `json:"retrieval_failures"`

	totalQueryTime time.Duration
}

// NewMetrics creates and registers the orchestrator collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_orchestrator_queries_total",
			Help: "Queries processed, labeled by final pipeline stage.",
		}, []string{"stage"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hearth_orchestrator_query_duration_seconds",
			Help:    "End-to-end query processing time.",
			Buckets: prometheus.DefBuckets,
		}),
		retrievalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_orchestrator_retrievals_total",
			Help: "Provider fetches, labeled by provider and outcome.",
		}, []string{"provider", "outcome"}),
		retrievalSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hearth_orchestrator_retrieval_duration_seconds",
			Help:    "Per-provider fetch time.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"provider"}),
		fallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearth_orchestrator_classification_fallbacks_total",
			Help: "Classifications that fell back to the general intent.",
		}),
		snapshot: MetricsSnapshot{
			RetrievalsByProvider: make(map[string]int64),
			RetrievalFailures:    make(map[string]int64),
		},
		started: time.Now(),
	}

	if reg != nil {
		reg.MustRegister(m.queriesTotal, m.queryDuration, m.retrievalsTotal, m.retrievalSeconds, m.fallbacksTotal)
	}
	return m
}

// RecordQuery records one completed or failed query.
func (m *Metrics) RecordQuery(finalStage Stage, elapsed time.Duration) {
	m.queriesTotal.WithLabelValues(string(finalStage)).Inc()
	m.queryDuration.Observe(elapsed.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.QueriesTotal++
	m.snapshot.totalQueryTime += elapsed
	if finalStage == StageFailed {
		m.snapshot.QueriesFailed++
	} else {
		m.snapshot.QueriesComplete++
	}
}

// RecordRetrieval records one provider fetch.
func (m *Metrics) RecordRetrieval(provider string, success bool, elapsed time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.retrievalsTotal.WithLabelValues(provider, outcome).Inc()
	m.retrievalSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.RetrievalsByProvider[provider]++
	if !success {
		m.snapshot.RetrievalFailures[provider]++
	}
}

// RecordClassificationFallback records a substitution of the general intent.
func (m *Metrics) RecordClassificationFallback() {
	m.fallbacksTotal.Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.ClassificationFallbacks++
}

// Snapshot returns a copy of the JSON metrics view.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.snapshot
	out.UptimeSeconds = int64(time.Since(m.started).Seconds())
	if out.QueriesTotal > 0 {
		out.AvgQueryTimeMS = float64(out.totalQueryTime.Milliseconds()) / float64(out.QueriesTotal)
	}
	out.RetrievalsByProvider = make(map[string]int64, len(m.snapshot.RetrievalsByProvider))
	for k, v := range m.snapshot.RetrievalsByProvider {
		out.RetrievalsByProvider[k] = v
	}
	out.RetrievalFailures = make(map[string]int64, len(m.snapshot.RetrievalFailures))
	for k, v := range m.snapshot.RetrievalFailures {
		out.RetrievalFailures[k] = v
	}
	return out
}
