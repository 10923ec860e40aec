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
	"fmt"
	"time"

	"hearth/connectors/base"
)

// Mode controls how much personal context a request may touch.
type Mode string

const (
	// ModeOwner requests run with full session history.
	ModeOwner Mode = "owner"

	// ModeGuest requests never read or write session state.
	ModeGuest Mode = "guest"
)

// Request is one inbound query from the gateway.
type Request struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	Mode      Mode   `json:"mode"`
}

// Response is the final answer returned to the gateway. Error is set when
// the pipeline could not produce a real answer and Answer carries a generic
// apology instead.
type Response struct {
	Answer           string   `json:"answer"`
	Intents          []string `json:"intents"`
	Sources          []string `json:"sources"`
	Confidence       float64  `json:"confidence"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
	SessionID        string   `json:"session_id,omitempty"`
	Error            bool     `json:"error,omitempty"`
}

// Stage identifies a step in the query pipeline.
type Stage string

const (
	StageReceived    Stage = "received"
	StageClassified  Stage = "classified"
	StageRetrieved   Stage = "retrieved"
	StageSynthesized Stage = "synthesized"
	StageValidated   Stage = "validated"
	StageComplete    Stage = "complete"
	StageFailed      Stage = "failed"
)

// IntentResult is one classified intent with its confidence.
type IntentResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// RetrievalResult records the outcome of one provider fetch, success or
// failure. Failures carry the error text so synthesis can note missing
// context.
type RetrievalResult struct {
	Provider string        `json:"provider"`
	Intent   string        `json:"intent"`
	Success  bool          `json:"success"`
	Result   *base.Result  `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ValidationVerdict is the post-hoc check of the synthesized answer against
// retrieved facts.
type ValidationVerdict struct {
	Valid      bool     `json:"valid"`
	Confidence float64  `json:"confidence"`
	Issues     []string `json:"issues,omitempty"`
}

// QueryState carries one query through the pipeline. It lives for exactly
// one request and is owned by the goroutine handling that request; stages
// hand it off sequentially, never share it.
type QueryState struct {
	RequestID string
	SessionID string
	Query     string
	Mode      Mode

	Stage      Stage
	Intents    []IntentResult
	Retrievals map[string]RetrievalResult
	Answer     string
	Verdict    *ValidationVerdict

	ModelByStage  map[Stage]string
	StageLatency  map[Stage]time.Duration
	StartedAt     time.Time
	FailureReason string
}

// newQueryState initializes per-request state in the Received stage.
func newQueryState(requestID string, req *Request) *QueryState {
	return &QueryState{
		RequestID:    requestID,
		SessionID:    req.SessionID,
		Query:        req.Query,
		Mode:         req.Mode,
		Stage:        StageReceived,
		Retrievals:   make(map[string]RetrievalResult),
		ModelByStage: make(map[Stage]string),
		StageLatency: make(map[Stage]time.Duration),
		StartedAt:    time.Now(),
	}
}

// IntentLabels returns just the labels of the classified intents.
func (s *QueryState) IntentLabels() []string {
	labels := make([]string, 0, len(s.Intents))
	for _, intent := range s.Intents {
		labels = append(labels, intent.Label)
	}
	return labels
}

// Sources returns the names of providers that returned data successfully.
func (s *QueryState) Sources() []string {
	sources := make([]string, 0, len(s.Retrievals))
	for name, r := range s.Retrievals {
		if r.Success {
			sources = append(sources, name)
		}
	}
	return sources
}

// ClassificationError reports unusable classifier output. The engine
// recovers by substituting the "general" intent.
type ClassificationError struct {
	Output string
	Cause  error
}

func (e *ClassificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("classification failed: %v", e.Cause)
	}
	return fmt.Sprintf("classification produced unusable output: %.100s", e.Output)
}

func (e *ClassificationError) Unwrap() error { return e.Cause }

// SynthesisError reports total failure to produce an answer. It is the only
// error class that fails the whole request.
type SynthesisError struct {
	Cause error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Cause)
}

func (e *SynthesisError) Unwrap() error { return e.Cause }

// ValidationError reports a failed validation pass. Non-fatal: the answer is
// still returned, with confidence zeroed.
type ValidationError struct {
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }
