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
	"strings"

	"hearth/orchestrator/llm"
)

// ValidIntents is the closed set of intent labels the classifier may emit.
// "control" covers device/action requests that have no retrieval provider;
// "general" is the catch-all and the substitution target on classifier
// failure.
var ValidIntents = []string{
	"weather",
	"sports",
	"airports",
	"travel",
	"news",
	"control",
	"general",
}

// classifierTemperature keeps classification deterministic.
const classifierTemperature = 0.2

// classifierMaxTokens bounds the classifier completion; the expected JSON
// is tiny.
const classifierMaxTokens = 256

// Generator is the slice of the router the pipeline stages need.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, opts llm.GenerateOptions) (*llm.Result, error)
}

// Classifier maps a query to one or more intent labels using a small,
// fast model at low temperature.
type Classifier struct {
	router Generator
	model  string
}

// NewClassifier creates a classifier that uses the given model.
func NewClassifier(router Generator, model string) *Classifier {
	return &Classifier{router: router, model: model}
}

// Classify returns the intents detected in the query. Multiple intents are
// retained when a query asks for several things at once. Unusable model
// output yields a ClassificationError; callers substitute "general".
func (c *Classifier) Classify(ctx context.Context, query string) ([]IntentResult, error) {
	prompt := buildClassificationPrompt(query)

	temp := classifierTemperature
	maxTokens := classifierMaxTokens
	result, err := c.router.Generate(ctx, c.model, prompt, llm.GenerateOptions{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, &ClassificationError{Cause: err}
	}

	intents, err := parseClassification(result.Text)
	if err != nil {
		return nil, err
	}
	return intents, nil
}

// Model returns the model name the classifier dispatches to.
func (c *Classifier) Model() string { return c.model }

func buildClassificationPrompt(query string) string {
	var b strings.Builder
	b.WriteString("You are an intent classifier for a question answering system.\n")
	b.WriteString("Classify the user query into one or more of these intents:\n")
	for _, label := range ValidIntents {
		b.WriteString("- ")
		b.WriteString(label)
		b.WriteString("\n")
	}
	b.WriteString("\nA query may have multiple intents. ")
	b.WriteString("Use \"general\" only when no specific intent applies.\n")
	b.WriteString("Respond with ONLY a JSON object in this exact format:\n")
	b.WriteString(`{"intents": [{"label": "weather", "confidence": 0.9}]}`)
	b.WriteString("\n\nQuery: ")
	b.WriteString(query)
	b.WriteString("\n")
	return b.String()
}

// classificationOutput is the JSON shape the classifier model is prompted
// to produce.
type classificationOutput struct {
	Intents []IntentResult `json:"intents"`
}

// parseClassification extracts the JSON object from the model output.
// Models wrap JSON in prose or markdown fences often enough that we slice
// from the first "{" to the last "}" before decoding.
func parseClassification(output string) ([]IntentResult, error) {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end <= start {
		return nil, &ClassificationError{Output: output}
	}

	var parsed classificationOutput
	if err := json.Unmarshal([]byte(output[start:end+1]), &parsed); err != nil {
		return nil, &ClassificationError{Output: output, Cause: err}
	}
	if len(parsed.Intents) == 0 {
		return nil, &ClassificationError{Output: output, Cause: fmt.Errorf("no intents in output")}
	}

	valid := make(map[string]bool, len(ValidIntents))
	for _, label := range ValidIntents {
		valid[label] = true
	}

	intents := make([]IntentResult, 0, len(parsed.Intents))
	seen := make(map[string]bool)
	for _, intent := range parsed.Intents {
		label := strings.ToLower(strings.TrimSpace(intent.Label))
		if !valid[label] || seen[label] {
			continue
		}
		if intent.Confidence < 0 || intent.Confidence > 1 {
			continue
		}
		seen[label] = true
		intents = append(intents, IntentResult{Label: label, Confidence: intent.Confidence})
	}

	if len(intents) == 0 {
		return nil, &ClassificationError{Output: output, Cause: fmt.Errorf("no valid intent labels in output")}
	}
	return intents, nil
}
