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
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"hearth/orchestrator/llm"
	"hearth/session"
)

// synthesizerTemperature allows natural phrasing in the final answer.
const synthesizerTemperature = 0.7

// historyTurnLimit bounds how many past turns are flattened into the
// synthesis prompt.
const historyTurnLimit = 5

// Synthesizer produces the final natural-language answer from the query,
// conversation history, and retrieved facts.
type Synthesizer struct {
	router Generator
	model  string
}

// NewSynthesizer creates a synthesizer that uses the given model.
func NewSynthesizer(router Generator, model string) *Synthesizer {
	return &Synthesizer{router: router, model: model}
}

// Synthesize generates the answer. Retrieval gaps are surfaced to the model
// as missing context rather than hidden, so the answer can acknowledge
// them instead of inventing data. A router failure here is fatal to the
// request and reported as SynthesisError.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, history []session.Turn, retrievals map[string]RetrievalResult) (string, error) {
	prompt := buildSynthesisPrompt(query, history, retrievals)

	temp := synthesizerTemperature
	result, err := s.router.Generate(ctx, s.model, prompt, llm.GenerateOptions{
		Temperature: &temp,
	})
	if err != nil {
		return "", &SynthesisError{Cause: err}
	}

	answer := strings.TrimSpace(result.Text)
	if answer == "" {
		return "", &SynthesisError{Cause: fmt.Errorf("model returned an empty completion")}
	}
	return answer, nil
}

// Model returns the model name the synthesizer dispatches to.
func (s *Synthesizer) Model() string { return s.model }

// buildSynthesisPrompt flattens history and retrieved data into a single
// prompt string. Conversation turns are rendered as "User:"/"Assistant:"
// lines rather than a chat message array; the completion endpoints both
// engines expose take one prompt, and the flattening loses nothing the
// models use.
func buildSynthesisPrompt(query string, history []session.Turn, retrievals map[string]RetrievalResult) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant. Answer the user's question using ONLY the retrieved data below.\n")
	b.WriteString("If the retrieved data does not cover part of the question, say so plainly. Never invent facts.\n\n")

	if len(history) > historyTurnLimit {
		history = history[len(history)-historyTurnLimit:]
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			b.WriteString("User: ")
			b.WriteString(turn.Query)
			b.WriteString("\nAssistant: ")
			b.WriteString(turn.Answer)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	names := make([]string, 0, len(retrievals))
	for name := range retrievals {
		names = append(names, name)
	}
	sort.Strings(names)

	wroteData := false
	var unavailable []string
	for _, name := range names {
		r := retrievals[name]
		if !r.Success || r.Result == nil || len(r.Result.Rows) == 0 {
			unavailable = append(unavailable, name)
			continue
		}
		if !wroteData {
			b.WriteString("Retrieved data:\n")
			wroteData = true
		}
		rows, err := json.Marshal(r.Result.Rows)
		if err != nil {
			unavailable = append(unavailable, name)
			continue
		}
		b.WriteString("[")
		b.WriteString(name)
		b.WriteString("] ")
		b.Write(rows)
		b.WriteString("\n")
	}
	if !wroteData {
		b.WriteString("Retrieved data: none available.\n")
	}
	if len(unavailable) > 0 {
		b.WriteString("Sources that returned no data: ")
		b.WriteString(strings.Join(unavailable, ", "))
		b.WriteString("\n")
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\nAnswer: ")
	return b.String()
}
