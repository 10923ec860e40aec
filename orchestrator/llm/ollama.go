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

// ollamaRequest is the request body for POST {endpoint}/api/generate.
type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

// ollamaResponse is the non-streaming response body.
type ollamaResponse struct {
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
}

// dispatchOllama sends a single non-streaming generation request to an
// Ollama-style engine at cfg.Endpoint.
func dispatchOllama(ctx context.Context, client *http.Client, cfg *BackendConfig, endpoint, prompt string, temperature float64, maxTokens int) (*Result, error) {
	reqBody := ollamaRequest{
		Model:  cfg.ModelName,
		Prompt: prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: temperature,
			NumPredict:  maxTokens,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &DispatchError{
			Backend:  BackendOllama,
			Endpoint: endpoint,
			Message:  fmt.Sprintf("failed to marshal request: %v", err),
			Cause:    err,
		}
	}

	url := endpoint + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &DispatchError{
			Backend:  BackendOllama,
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
			Backend:  BackendOllama,
			Endpoint: endpoint,
			Message:  fmt.Sprintf("request failed: %v", err),
			Cause:    err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &DispatchError{
			Backend:    BackendOllama,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	var engineResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&engineResp); err != nil {
		return nil, &DispatchError{
			Backend:  BackendOllama,
			Endpoint: endpoint,
			Message:  fmt.Sprintf("malformed response: %v", err),
			Cause:    err,
		}
	}

	return &Result{
		Text:       engineResp.Response,
		Backend:    BackendOllama,
		Model:      cfg.ModelName,
		TokensUsed: engineResp.EvalCount,
		Latency:    time.Since(start),
	}, nil
}
