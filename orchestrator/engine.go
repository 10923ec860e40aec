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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hearth/session"
	"hearth/shared/logger"
)

// Engine drives a query through the pipeline:
//
//	Received → Classified → Retrieved → Synthesized → Validated → Complete
//
// with Failed reachable from any stage on a hard error. Synthesis failure
// is the only hard error; everything earlier degrades locally (default
// intent, partial retrieval) and validation failure only zeroes confidence.
type Engine struct {
	classifier  *Classifier
	coordinator *Coordinator
	synthesizer *Synthesizer
	validator   *Validator
	sessions    session.Store
	audit       *AuditTrail
	metrics     *Metrics
	log         *logger.Logger
}

// EngineDeps carries the collaborators an Engine needs.
type EngineDeps struct {
	Classifier  *Classifier
	Coordinator *Coordinator
	Synthesizer *Synthesizer
	Validator   *Validator
	Sessions    session.Store
	Audit       *AuditTrail
	Metrics     *Metrics
}

// NewEngine creates the orchestration engine.
func NewEngine(deps EngineDeps) *Engine {
	return &Engine{
		classifier:  deps.Classifier,
		coordinator: deps.Coordinator,
		synthesizer: deps.Synthesizer,
		validator:   deps.Validator,
		sessions:    deps.Sessions,
		audit:       deps.Audit,
		metrics:     deps.Metrics,
		log:         logger.New("orchestrator"),
	}
}

// Handle processes one query end to end. The returned error is non-nil
// only for invalid input or synthesis failure.
func (e *Engine) Handle(ctx context.Context, req *Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if req.Mode == "" {
		req.Mode = ModeOwner
	}
	if req.Mode != ModeOwner && req.Mode != ModeGuest {
		return nil, fmt.Errorf("unknown mode %q", req.Mode)
	}
	if req.Mode == ModeOwner && req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	state := newQueryState(uuid.NewString(), req)
	e.log.Info(state.SessionID, state.RequestID, "Query received", map[string]interface{}{
		"mode": string(state.Mode),
	})

	history := e.loadHistory(ctx, state)

	e.classify(ctx, state)
	e.retrieve(ctx, state)

	if err := e.synthesize(ctx, state, history); err != nil {
		state.Stage = StageFailed
		state.FailureReason = err.Error()
		e.finish(ctx, state, err)
		return nil, err
	}

	e.validate(ctx, state)
	state.Stage = StageComplete
	e.saveTurn(ctx, state)
	e.finish(ctx, state, nil)

	confidence := 0.0
	if state.Verdict != nil {
		confidence = state.Verdict.Confidence
	}

	resp := &Response{
		Answer:           state.Answer,
		Intents:          state.IntentLabels(),
		Sources:          state.Sources(),
		Confidence:       confidence,
		ProcessingTimeMS: time.Since(state.StartedAt).Milliseconds(),
	}
	if state.Mode == ModeOwner {
		resp.SessionID = state.SessionID
	}
	return resp, nil
}

// loadHistory reads prior turns for owner-mode requests. Guest requests
// never touch session state. A session read failure degrades to an empty
// history.
func (e *Engine) loadHistory(ctx context.Context, state *QueryState) []session.Turn {
	if state.Mode == ModeGuest || e.sessions == nil {
		return nil
	}

	sess, err := e.sessions.Get(ctx, state.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		e.log.Warn(state.SessionID, state.RequestID, "Session read failed, continuing without history", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return sess.Turns
}

// classify runs intent classification. Unusable classifier output is
// recovered by substituting the "general" intent.
func (e *Engine) classify(ctx context.Context, state *QueryState) {
	start := time.Now()
	state.ModelByStage[StageClassified] = e.classifier.Model()

	intents, err := e.classifier.Classify(ctx, state.Query)
	state.StageLatency[StageClassified] = time.Since(start)

	if err != nil {
		var classErr *ClassificationError
		if !errors.As(err, &classErr) {
			classErr = &ClassificationError{Cause: err}
		}
		e.log.Warn(state.SessionID, state.RequestID, "Classification failed, substituting general intent", map[string]interface{}{
			"error": classErr.Error(),
		})
		intents = []IntentResult{{Label: "general", Confidence: 1.0}}
		if e.metrics != nil {
			e.metrics.RecordClassificationFallback()
		}
	}

	state.Intents = intents
	state.Stage = StageClassified
	e.log.Info(state.SessionID, state.RequestID, "Query classified", map[string]interface{}{
		"intents": state.IntentLabels(),
	})
}

// retrieve fans out to the matched providers. Partial or even total
// retrieval failure never fails the request.
func (e *Engine) retrieve(ctx context.Context, state *QueryState) {
	start := time.Now()
	state.Retrievals = e.coordinator.Fetch(ctx, state.SessionID, state.RequestID, state.Query, state.Intents)
	state.StageLatency[StageRetrieved] = time.Since(start)
	state.Stage = StageRetrieved

	if e.metrics != nil {
		for _, r := range state.Retrievals {
			e.metrics.RecordRetrieval(r.Provider, r.Success, r.Duration)
		}
	}
}

// synthesize produces the answer. This is the only stage whose failure
// aborts the request.
func (e *Engine) synthesize(ctx context.Context, state *QueryState, history []session.Turn) error {
	start := time.Now()
	state.ModelByStage[StageSynthesized] = e.synthesizer.Model()

	answer, err := e.synthesizer.Synthesize(ctx, state.Query, history, state.Retrievals)
	state.StageLatency[StageSynthesized] = time.Since(start)

	if err != nil {
		e.log.ErrorWithStage(state.SessionID, state.RequestID, "Synthesis failed", "synthesize", err, nil)
		return err
	}

	state.Answer = answer
	state.Stage = StageSynthesized
	return nil
}

// validate cross-checks the answer. A validation failure keeps the answer
// and zeroes confidence.
func (e *Engine) validate(ctx context.Context, state *QueryState) {
	start := time.Now()
	verdict, err := e.validator.Validate(ctx, state.Query, state.Answer, state.Retrievals)
	state.StageLatency[StageValidated] = time.Since(start)
	state.Stage = StageValidated

	if err != nil {
		e.log.Warn(state.SessionID, state.RequestID, "Validation pass failed, returning answer with zero confidence", map[string]interface{}{
			"error": err.Error(),
		})
		state.Verdict = &ValidationVerdict{Valid: false, Confidence: 0, Issues: []string{err.Error()}}
		return
	}
	state.Verdict = verdict
}

// saveTurn persists the completed turn for owner-mode requests.
func (e *Engine) saveTurn(ctx context.Context, state *QueryState) {
	if state.Mode == ModeGuest || e.sessions == nil {
		return
	}

	_, err := e.sessions.AppendTurn(ctx, state.SessionID, session.Turn{
		Query:   state.Query,
		Answer:  state.Answer,
		Intents: state.IntentLabels(),
	})
	if err != nil {
		e.log.Warn(state.SessionID, state.RequestID, "Session write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// finish records metrics, audit, and the final log line for the request.
func (e *Engine) finish(ctx context.Context, state *QueryState, handleErr error) {
	elapsed := time.Since(state.StartedAt)

	if e.metrics != nil {
		e.metrics.RecordQuery(state.Stage, elapsed)
	}
	if e.audit != nil {
		e.audit.Record(ctx, state, handleErr)
	}

	fields := map[string]interface{}{
		"stage":   string(state.Stage),
		"intents": state.IntentLabels(),
		"sources": state.Sources(),
	}
	if handleErr != nil {
		e.log.ErrorWithStage(state.SessionID, state.RequestID, "Query failed", string(state.Stage), handleErr, fields)
		return
	}
	e.log.InfoWithDuration(state.SessionID, state.RequestID, "Query completed", float64(elapsed.Milliseconds()), fields)
}
