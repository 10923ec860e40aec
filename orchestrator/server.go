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
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"hearth/connectors/registry"
	"hearth/orchestrator/llm"
	"hearth/session"
	"hearth/shared/logger"
)

// Server is the HTTP gateway in front of the engine.
type Server struct {
	engine   *Engine
	router   *llm.Router
	registry *registry.Registry
	sessions session.Store
	audit    *AuditTrail
	metrics  *Metrics
	promReg  *prometheus.Registry
	log      *logger.Logger

	httpServer *http.Server
}

// ServerConfig carries the gateway's dependencies and listen address.
type ServerConfig struct {
	Addr     string
	Engine   *Engine
	Router   *llm.Router
	Registry *registry.Registry
	Sessions session.Store
	Audit    *AuditTrail
	Metrics  *Metrics
	PromReg  *prometheus.Registry
}

// NewServer builds the gateway with routes and middleware wired.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		engine:   cfg.Engine,
		router:   cfg.Router,
		registry: cfg.Registry,
		sessions: cfg.Sessions,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		promReg:  cfg.PromReg,
		log:      logger.New("gateway"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	if s.promReg != nil {
		r.Handle("/prometheus", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/backends/status", s.handleBackendStatus).Methods(http.MethodGet)
	api.HandleFunc("/providers", s.handleProviders).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      corsHandler.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// ListenAndServe starts the gateway. Blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info("", "", "Gateway listening", map[string]interface{}{
		"addr": s.httpServer.Addr,
	})
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the wired HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("", "", "Failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	resp, err := s.engine.Handle(r.Context(), &req)
	if err != nil {
		var synthErr *SynthesisError
		if errors.As(err, &synthErr) {
			// The gateway returns a response body either way. Synthesis
			// failure degrades to a generic answer with the error flag set,
			// never a 5xx and never internal failure detail.
			s.writeJSON(w, http.StatusOK, &Response{
				Answer: "I wasn't able to put together an answer right now. Please try again.",
				Error:  true,
			})
			return
		}
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	if s.audit != nil {
		if s.audit.Healthy(r.Context()) {
			checks["audit"] = "ok"
		} else {
			checks["audit"] = "unreachable"
			status = "degraded"
		}
	}
	if s.sessions != nil {
		checks["sessions"] = "ok"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleBackendStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.router.BackendStatus())
}

type providerInfo struct {
	Name    string   `json:"name"`
	Intents []string `json:"intents"`
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	providers := s.registry.All()
	out := make([]providerInfo, 0, len(providers))
	for _, p := range providers {
		out = append(out, providerInfo{Name: p.Name(), Intents: p.Intents()})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "session store disabled"})
		return
	}
	id := mux.Vars(r)["id"]

	sess, err := s.sessions.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read session"})
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "session store disabled"})
		return
	}
	id := mux.Vars(r)["id"]

	if err := s.sessions.Delete(r.Context(), id); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to delete session"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
