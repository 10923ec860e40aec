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

package base

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetJSONDecodesArrayAndObject(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantRows int
		wantKey  string
	}{
		{"array of objects", `[{"city":"Baltimore"},{"city":"Denver"}]`, 2, "city"},
		{"single object", `{"city":"Baltimore","temp_f":71}`, 1, "city"},
		{"array of scalars", `[1,2,3]`, 3, "value"},
		{"scalar", `"ok"`, 1, "value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewAPIClient("test", srv.URL, "", time.Second)
			rows, err := client.GetJSON(context.Background(), "/data", nil)
			if err != nil {
				t.Fatalf("GetJSON() error = %v", err)
			}
			if len(rows) != tt.wantRows {
				t.Fatalf("got %d rows, want %d", len(rows), tt.wantRows)
			}
			if _, ok := rows[0][tt.wantKey]; !ok {
				t.Errorf("row missing key %q: %v", tt.wantKey, rows[0])
			}
		})
	}
}

func TestGetJSONSendsParamsAndAPIKey(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.Header.Get("X-API-Key")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewAPIClient("test", srv.URL, "secret-key", time.Second)
	_, err := client.GetJSON(context.Background(), "/data", map[string]string{"q": "weather in Baltimore"})
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}

	if gotQuery != "weather in Baltimore" {
		t.Errorf("query param = %q", gotQuery)
	}
	if gotKey != "secret-key" {
		t.Errorf("API key header = %q", gotKey)
	}
}

func TestGetJSONErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewAPIClient("test", srv.URL, "", time.Second)
	_, err := client.GetJSON(context.Background(), "/data", nil)
	if err == nil {
		t.Fatal("expected error for non-2xx status")
	}

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if provErr.Provider != "test" || provErr.Operation != "Fetch" {
		t.Errorf("error = %v", provErr)
	}
}

func TestGetJSONHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewAPIClient("test", srv.URL, "", 10*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.GetJSON(ctx, "/slow", nil)
	if err == nil {
		t.Fatal("expected error when context deadline passes")
	}
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewAPIClient("test", srv.URL, "", time.Second)
	status, err := client.CheckHealth(context.Background(), "/health")
	if err != nil {
		t.Fatalf("CheckHealth() error = %v", err)
	}
	if !status.Healthy {
		t.Error("expected healthy status")
	}
	if status.Latency <= 0 {
		t.Error("expected positive latency")
	}
}

func TestCheckHealthUnreachable(t *testing.T) {
	client := NewAPIClient("test", "http://127.0.0.1:1", "", 200*time.Millisecond)
	status, err := client.CheckHealth(context.Background(), "/health")
	if err != nil {
		t.Fatalf("CheckHealth() error = %v", err)
	}
	if status.Healthy {
		t.Error("expected unhealthy status for unreachable API")
	}
	if status.Error == "" {
		t.Error("expected error detail")
	}
}
