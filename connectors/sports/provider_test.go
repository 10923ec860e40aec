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

package sports

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"hearth/connectors/base"
)

func TestFetchScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/scores" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("team"); got != "ravens" {
			t.Errorf("team = %q, want ravens", got)
		}
		w.Write([]byte(`[{"home":"Ravens","away":"Steelers","score":"24-17"}]`))
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL})

	result, err := p.Fetch(context.Background(), &base.Query{
		Text:       "Ravens score?",
		Intent:     "sports",
		Parameters: map[string]interface{}{"team": "ravens"},
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if result.Provider != "sports" {
		t.Errorf("Provider = %q", result.Provider)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(result.Rows))
	}
	if result.Rows[0]["score"] != "24-17" {
		t.Errorf("score = %v", result.Rows[0]["score"])
	}
}

func TestFetchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL})
	_, err := p.Fetch(context.Background(), &base.Query{Text: "scores", Intent: "sports"})
	if err == nil {
		t.Fatal("expected error for upstream failure")
	}
}

func TestProviderMetadata(t *testing.T) {
	p := New(Config{BaseURL: "http://example.test"})

	if p.Name() != "sports" {
		t.Errorf("Name() = %q", p.Name())
	}
	if p.Timeout() != base.DefaultTimeout {
		t.Errorf("Timeout() = %v, want default", p.Timeout())
	}
	if got := p.Intents(); len(got) != 1 || got[0] != "sports" {
		t.Errorf("Intents() = %v", got)
	}
}
