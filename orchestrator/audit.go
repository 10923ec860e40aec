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
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	auditQueueSize  = 10000
	auditBatchSize  = 100
	auditFlushEvery = 5 * time.Second
)

// AuditRecord is one persisted query trace.
type AuditRecord struct {
	RequestID    string        `json:"request_id"`
	SessionID    string        `json:"session_id"`
	Timestamp    time.Time     `json:"timestamp"`
	Mode         string        `json:"mode"`
	Query        string        `json:"query"`
	FinalStage   string        `json:"final_stage"`
	Intents      []string      `json:"intents"`
	Sources      []string      `json:"sources"`
	Answer       string        `json:"answer"`
	Confidence   float64       `json:"confidence"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// AuditTrail persists query traces to Postgres through a buffered queue and
// batch writer, so the request path never blocks on the database. Without a
// database it degrades to a no-op.
type AuditTrail struct {
	db       *sql.DB
	queue    chan *AuditRecord
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu    sync.Mutex
	batch []*AuditRecord
}

// NewAuditTrail creates the audit trail. An empty databaseURL, or a
// database that cannot be reached, yields a no-op trail rather than an
// error: audit must never take the orchestrator down.
func NewAuditTrail(databaseURL string) *AuditTrail {
	t := &AuditTrail{
		queue:    make(chan *AuditRecord, auditQueueSize),
		shutdown: make(chan struct{}),
		batch:    make([]*AuditRecord, 0, auditBatchSize),
	}

	if databaseURL == "" {
		return t
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Printf("[Audit] Failed to open audit database, auditing disabled: %v", err)
		return t
	}
	if err := createAuditTable(db); err != nil {
		log.Printf("[Audit] Failed to create audit table, auditing disabled: %v", err)
		_ = db.Close()
		return t
	}

	t.db = db
	t.wg.Add(1)
	go t.run()
	return t
}

// Record queues a query trace for persistence. Never blocks: if the queue
// is full the record is dropped with a log line.
func (t *AuditTrail) Record(_ context.Context, state *QueryState, handleErr error) {
	if t.db == nil {
		return
	}

	confidence := 0.0
	if state.Verdict != nil {
		confidence = state.Verdict.Confidence
	}
	record := &AuditRecord{
		RequestID:  state.RequestID,
		SessionID:  state.SessionID,
		Timestamp:  time.Now().UTC(),
		Mode:       string(state.Mode),
		Query:      state.Query,
		FinalStage: string(state.Stage),
		Intents:    state.IntentLabels(),
		Sources:    state.Sources(),
		Answer:     truncate(state.Answer, 500),
		Confidence: confidence,
		Duration:   time.Since(state.StartedAt),
	}
	if handleErr != nil {
		record.ErrorMessage = handleErr.Error()
	}

	select {
	case t.queue <- record:
	default:
		log.Printf("[Audit] Queue full, dropping record %s", record.RequestID)
	}
}

// Healthy reports whether the audit database is reachable. A no-op trail
// is always healthy.
func (t *AuditTrail) Healthy(ctx context.Context) bool {
	if t.db == nil {
		return true
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return t.db.PingContext(pingCtx) == nil
}

// Close flushes pending records and shuts the writer down.
func (t *AuditTrail) Close() error {
	if t.db == nil {
		return nil
	}
	close(t.shutdown)
	t.wg.Wait()
	return t.db.Close()
}

// run drains the queue into batches, flushing on size or on a timer.
func (t *AuditTrail) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(auditFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case record := <-t.queue:
			t.mu.Lock()
			t.batch = append(t.batch, record)
			full := len(t.batch) >= auditBatchSize
			t.mu.Unlock()
			if full {
				t.flush()
			}
		case <-ticker.C:
			t.flush()
		case <-t.shutdown:
			t.drain()
			t.flush()
			return
		}
	}
}

// drain moves everything still queued into the batch.
func (t *AuditTrail) drain() {
	for {
		select {
		case record := <-t.queue:
			t.mu.Lock()
			t.batch = append(t.batch, record)
			t.mu.Unlock()
		default:
			return
		}
	}
}

func (t *AuditTrail) flush() {
	t.mu.Lock()
	if len(t.batch) == 0 {
		t.mu.Unlock()
		return
	}
	batch := t.batch
	t.batch = make([]*AuditRecord, 0, auditBatchSize)
	t.mu.Unlock()

	if err := t.write(batch); err != nil {
		log.Printf("[Audit] Failed to write batch of %d records: %v", len(batch), err)
	}
}

func (t *AuditTrail) write(records []*AuditRecord) error {
	tx, err := t.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_audit (
			request_id, session_id, timestamp, mode, query, final_stage,
			intents, sources, answer, confidence, error_message, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		intentsJSON, _ := json.Marshal(r.Intents)
		sourcesJSON, _ := json.Marshal(r.Sources)

		if _, err := stmt.Exec(
			r.RequestID,
			r.SessionID,
			r.Timestamp,
			r.Mode,
			r.Query,
			r.FinalStage,
			intentsJSON,
			sourcesJSON,
			r.Answer,
			r.Confidence,
			r.ErrorMessage,
			r.Duration.Milliseconds(),
		); err != nil {
			log.Printf("[Audit] Failed to insert record %s: %v", r.RequestID, err)
		}
	}

	return tx.Commit()
}

func createAuditTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS query_audit (
		request_id VARCHAR(64) PRIMARY KEY,
		session_id VARCHAR(64) NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		mode VARCHAR(16) NOT NULL,
		query TEXT NOT NULL,
		final_stage VARCHAR(32) NOT NULL,
		intents JSONB,
		sources JSONB,
		answer TEXT,
		confidence DOUBLE PRECISION,
		error_message TEXT,
		duration_ms BIGINT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_query_audit_session_id ON query_audit(session_id);
	CREATE INDEX IF NOT EXISTS idx_query_audit_timestamp ON query_audit(timestamp);
	`
	_, err := db.Exec(query)
	return err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
