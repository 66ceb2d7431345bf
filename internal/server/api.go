// Package server exposes the question-answering pipeline over HTTP, with
// health and readiness probes and a graceful shutdown handler.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/pipeline"
	"github.com/docquery/docquery/internal/store"
)

// Config configures the API server.
type Config struct {
	ListenAddr string
}

func DefaultConfig() *Config {
	return &Config{ListenAddr: ":8000"}
}

// Server serves /ask plus the probe and metrics endpoints.
type Server struct {
	config   *Config
	pipeline *pipeline.Pipeline
	store    store.ChunkStore
	server   *http.Server
}

// AskRequest is the /ask request body.
type AskRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

// AskResponse is the /ask response body.
type AskResponse struct {
	Answer        string                  `json:"answer"`
	Sources       []string                `json:"sources"`
	SourcesScored []pipeline.ScoredSource `json:"sources_scored"`
	SessionID     string                  `json:"session_id"`
}

func NewServer(config *Config, p *pipeline.Pipeline, st store.ChunkStore) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Server{
		config:   config,
		pipeline: p,
		store:    st,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ask", s.handleAsk)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", observability.Metrics().Handler())

	s.server = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      loggingMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // provider chains can be slow
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	slog.Info("starting api server", "addr", s.config.ListenAddr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("stopping api server")
	return s.server.Shutdown(ctx)
}

// handleAsk handles POST /ask.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	res, err := s.pipeline.Answer(r.Context(), req.Question, req.SessionID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client went away; nothing useful to write.
			return
		}
		slog.Error("answer failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, AskResponse{
		Answer:        res.Answer,
		Sources:       res.Sources,
		SourcesScored: res.SourcesScored,
		SessionID:     res.SessionID,
	})
}

// handleHealth handles GET /healthz - liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

// handleReady handles GET /readyz - reports the chunk count so operators
// can tell an empty corpus apart from a broken store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	count, err := s.store.Count(r.Context())
	if err != nil {
		slog.Error("chunk count failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		respondJSON(w, map[string]any{"status": "error", "chunks": -1})
		return
	}

	status := "ok"
	if count == 0 {
		status = "empty"
	}
	respondJSON(w, map[string]any{"status": status, "chunks": count})
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
