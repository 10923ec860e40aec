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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleCheckEmptyAnswer(t *testing.T) {
	v := NewValidator(nil, "")

	verdict, err := v.Validate(context.Background(), "q", "   ", nil)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.Zero(t, verdict.Confidence)
}

func TestRuleCheckGroundedNumbers(t *testing.T) {
	v := NewValidator(nil, "")
	retrievals := map[string]RetrievalResult{
		"weather": successfulRetrieval("weather", []map[string]interface{}{{"temp_f": 71}}),
	}

	verdict, err := v.Validate(context.Background(), "weather?", "It is 71 degrees.", retrievals)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Empty(t, verdict.Issues)
	assert.Greater(t, verdict.Confidence, 0.5)
}

func TestRuleCheckFlagsUngroundedNumbers(t *testing.T) {
	v := NewValidator(nil, "")
	retrievals := map[string]RetrievalResult{
		"weather": successfulRetrieval("weather", []map[string]interface{}{{"temp_f": 71}}),
	}

	verdict, err := v.Validate(context.Background(), "weather?", "It is 88 degrees.", retrievals)
	require.NoError(t, err)
	assert.True(t, verdict.Valid, "ungrounded numbers lower confidence without invalidating")
	require.NotEmpty(t, verdict.Issues)
	assert.Contains(t, verdict.Issues[0], "88")
	assert.Less(t, verdict.Confidence, 0.5)
}

func TestRuleCheckWithoutRetrievalData(t *testing.T) {
	v := NewValidator(nil, "")

	verdict, err := v.Validate(context.Background(), "turn on office lights",
		"I can't control devices.", map[string]RetrievalResult{})
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Equal(t, 0.5, verdict.Confidence, "ungroundable answers get middling confidence")
}

func TestLLMCheckSupported(t *testing.T) {
	gen := &scriptedGenerator{
		fallback: `{"supported": true, "confidence": 0.95, "issues": []}`,
	}
	v := NewValidator(gen, "llama3.2:1b")
	retrievals := map[string]RetrievalResult{
		"weather": successfulRetrieval("weather", []map[string]interface{}{{"temp_f": 71}}),
	}

	verdict, err := v.Validate(context.Background(), "weather?", "It is 71 degrees.", retrievals)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Equal(t, 0.95, verdict.Confidence)

	require.Len(t, gen.calls, 1)
	require.NotNil(t, gen.calls[0].opts.Temperature)
	assert.LessOrEqual(t, *gen.calls[0].opts.Temperature, 0.3)
}

func TestLLMCheckUnsupportedClaim(t *testing.T) {
	gen := &scriptedGenerator{
		fallback: `{"supported": false, "confidence": 0.2, "issues": ["temperature contradicts source"]}`,
	}
	v := NewValidator(gen, "llama3.2:1b")
	retrievals := map[string]RetrievalResult{
		"weather": successfulRetrieval("weather", []map[string]interface{}{{"temp_f": 71}}),
	}

	verdict, err := v.Validate(context.Background(), "weather?", "It is 71 degrees and snowing.", retrievals)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.Contains(t, verdict.Issues, "temperature contradicts source")
}

func TestLLMCheckFailureReturnsValidationError(t *testing.T) {
	tests := []struct {
		name string
		gen  *scriptedGenerator
	}{
		{"router failure", &scriptedGenerator{err: errors.New("all backends failed")}},
		{"non-JSON output", &scriptedGenerator{fallback: "looks fine to me"}},
		{"malformed JSON", &scriptedGenerator{fallback: `{"supported": `}},
	}

	retrievals := map[string]RetrievalResult{
		"weather": successfulRetrieval("weather", []map[string]interface{}{{"temp_f": 71}}),
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(tt.gen, "llama3.2:1b")
			_, err := v.Validate(context.Background(), "q", "It is 71 degrees.", retrievals)
			require.Error(t, err)

			var valErr *ValidationError
			assert.True(t, errors.As(err, &valErr), "error type = %T", err)
		})
	}
}

func TestLLMCheckSkippedWithoutModel(t *testing.T) {
	gen := &scriptedGenerator{fallback: "should never be called"}
	v := NewValidator(gen, "")

	_, err := v.Validate(context.Background(), "q", "answer", nil)
	require.NoError(t, err)
	assert.Zero(t, gen.callCount())
}
