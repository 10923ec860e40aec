// Copyright 2025 Hearth
// SPDX-License-Identifier: Apache-2.0
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// openaiRequest is the request body for POST {endpoint}/v1/completions.
// This is the legacy completion shape, which is what vLLM and
// llama.cpp-server expose for non-chat generation.
type openaiRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

type openaiResponse struct {
	Choices []struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// dispatchOpenAI sends a single completion request to an OpenAI-compatible
// engine at cfg.Endpoint.
func dispatchOpenAI(ctx context.Context, client *http.Client, cfg *BackendConfig, endpoint, prompt string, temperature float64, maxTokens int) (*Result, error) {
	reqBody := openaiRequest{
		Model:       cfg.ModelName,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stream:      false,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &DispatchError{
			Backend:  BackendOpenAI,
			Endpoint: endpoint,
			Message:  fmt.Sprintf("failed to marshal request: %v", err),
			Cause:    err,
		}
	}

	url := endpoint + "/v1/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &DispatchError{
			Backend:  BackendOpenAI,
			Endpoint: endpoint,
			Message:  fmt.Sprintf("failed to build request: %v", err),
			Cause:    err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &DispatchError{
			Backend:  BackendOpenAI,
			Endpoint: endpoint,
			Message:  fmt.Sprintf("request failed: %v", err),
			Cause:    err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &DispatchError{
			Backend:    BackendOpenAI,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	var engineResp openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&engineResp); err != nil {
		return nil, &DispatchError{
			Backend:  BackendOpenAI,
			Endpoint: endpoint,
			Message:  fmt.Sprintf("malformed response: %v", err),
			Cause:    err,
		}
	}

	if len(engineResp.Choices) == 0 {
		return nil, &DispatchError{
			Backend:  BackendOpenAI,
			Endpoint: endpoint,
			Message:  "response contained no choices",
		}
	}

	return &Result{
		Text:       engineResp.Choices[0].Text,
		Backend:    BackendOpenAI,
		Model:      cfg.ModelName,
		TokensUsed: engineResp.Usage.CompletionTokens,
		Latency:    time.Since(start),
	}, nil
}
