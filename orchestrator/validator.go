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
	"regexp"
	"strings"

	"hearth/orchestrator/llm"
)

// validatorTemperature keeps the LLM validation pass deterministic.
const validatorTemperature = 0.1

// Validator checks the synthesized answer against the retrieved facts
// before it leaves the system. Rule checks always run; the LLM cross-check
// runs only when a model is configured. Validation never blocks an answer:
// a failed pass zeroes confidence, it does not fail the request.
type Validator struct {
	router Generator
	model  string
}

// NewValidator creates a validator. An empty model disables the LLM pass.
func NewValidator(router Generator, model string) *Validator {
	return &Validator{router: router, model: model}
}

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Validate runs rule checks and, when configured, an LLM cross-check of
// the answer against retrieved data.
func (v *Validator) Validate(ctx context.Context, query, answer string, retrievals map[string]RetrievalResult) (*ValidationVerdict, error) {
	verdict := v.ruleCheck(answer, retrievals)
	if !verdict.Valid {
		return verdict, nil
	}

	if v.model == "" || v.router == nil {
		return verdict, nil
	}
	return v.llmCheck(ctx, query, answer, retrievals, verdict)
}

// ruleCheck applies cheap deterministic checks: the answer must be
// non-empty, and numbers in the answer should appear somewhere in the
// retrieved rows when retrieval produced data. A number the sources never
// mention is the cheapest hallucination signal available without a model.
func (v *Validator) ruleCheck(answer string, retrievals map[string]RetrievalResult) *ValidationVerdict {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return &ValidationVerdict{Valid: false, Confidence: 0, Issues: []string{"empty answer"}}
	}

	var retrieved strings.Builder
	hasData := false
	for _, r := range retrievals {
		if r.Success && r.Result != nil && len(r.Result.Rows) > 0 {
			hasData = true
			rows, _ := json.Marshal(r.Result.Rows)
			retrieved.Write(rows)
		}
	}

	verdict := &ValidationVerdict{Valid: true, Confidence: 0.8}
	if !hasData {
		// Nothing to ground against; the answer stands on its own.
		verdict.Confidence = 0.5
		return verdict
	}

	corpus := retrieved.String()
	for _, num := range numberPattern.FindAllString(answer, -1) {
		if !strings.Contains(corpus, num) {
			verdict.Issues = append(verdict.Issues, "answer contains number not present in retrieved data: "+num)
		}
	}
	if len(verdict.Issues) > 0 {
		verdict.Confidence = 0.4
	}
	return verdict
}

// llmValidationOutput is the JSON shape the validation model is prompted
// to produce.
type llmValidationOutput struct {
	Supported  bool     `json:"supported"`
	Confidence float64  `json:"confidence"`
	Issues     []string `json:"issues"`
}

// llmCheck asks a model whether the answer is supported by the retrieved
// data. Router or parse failures surface as ValidationError so the engine
// can degrade to confidence zero rather than drop the answer.
func (v *Validator) llmCheck(ctx context.Context, query, answer string, retrievals map[string]RetrievalResult, base *ValidationVerdict) (*ValidationVerdict, error) {
	var data strings.Builder
	for name, r := range retrievals {
		if r.Success && r.Result != nil {
			rows, _ := json.Marshal(r.Result.Rows)
			data.WriteString("[" + name + "] ")
			data.Write(rows)
			data.WriteString("\n")
		}
	}

	var b strings.Builder
	b.WriteString("You verify answers against source data.\n")
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\nAnswer: ")
	b.WriteString(answer)
	b.WriteString("\nSource data:\n")
	b.WriteString(data.String())
	b.WriteString("\nIs every factual claim in the answer supported by the source data?\n")
	b.WriteString(`Respond with ONLY JSON: {"supported": true, "confidence": 0.9, "issues": []}`)
	b.WriteString("\n")

	temp := validatorTemperature
	result, err := v.router.Generate(ctx, v.model, b.String(), llm.GenerateOptions{
		Temperature: &temp,
	})
	if err != nil {
		return nil, &ValidationError{Cause: err}
	}

	start := strings.Index(result.Text, "{")
	end := strings.LastIndex(result.Text, "}")
	if start < 0 || end <= start {
		return nil, &ValidationError{Cause: errMalformedValidation}
	}

	var parsed llmValidationOutput
	if err := json.Unmarshal([]byte(result.Text[start:end+1]), &parsed); err != nil {
		return nil, &ValidationError{Cause: err}
	}

	verdict := &ValidationVerdict{
		Valid:      parsed.Supported,
		Confidence: parsed.Confidence,
		Issues:     append(base.Issues, parsed.Issues...),
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		verdict.Confidence = base.Confidence
	}
	return verdict, nil
}

var errMalformedValidation = &jsonShapeError{"validation model output contained no JSON object"}

type jsonShapeError struct{ msg string }

func (e *jsonShapeError) Error() string { return e.msg }
