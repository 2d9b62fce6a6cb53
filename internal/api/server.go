// Package api exposes the phrase service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"soup/internal/domain"
)

const maxBodyBytes = 1 << 20

// Phrases is the part of the phrase service the HTTP layer needs.
type Phrases interface {
	Add(ctx context.Context, text string) (string, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.PhraseSummary, error)
	Search(ctx context.Context, text string) ([]domain.SearchResult, error)
	Deferred() bool
}

// Server is the phrase HTTP server.
type Server struct {
	phrases Phrases
	log     *slog.Logger
	server  *http.Server
}

// NewServer creates a server listening on addr. A nil logger discards output.
func NewServer(addr string, phrases Phrases, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		phrases: phrases,
		log:     logger,
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // add and search wait on the embedding provider
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /phrases", s.handleAdd)
	mux.HandleFunc("GET /phrases", s.handleList)
	mux.HandleFunc("DELETE /phrases/{id}", s.handleRemove)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.loggingMiddleware(mux)
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.log.Info("starting phrase server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("phrase server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping phrase server")
	return s.server.Shutdown(ctx)
}

type textRequest struct {
	Text string `json:"text"`
}

type addResponse struct {
	ID    string       `json:"id"`
	State domain.State `json:"state"`
}

type searchResult struct {
	ID      string  `json:"id"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Percent int     `json:"percent"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleAdd handles POST /phrases
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeText(w, r)
	if !ok {
		return
	}

	id, err := s.phrases.Add(r.Context(), req.Text)
	if s.phrases.Deferred() && id != "" {
		// the phrase exists as pending even if scheduling failed
		if err != nil {
			s.log.Warn("phrase stored but embedding not scheduled", "id", id, "error", err)
		}
		s.respondJSON(w, http.StatusAccepted, addResponse{ID: id, State: domain.StatePending})
		return
	}
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, addResponse{ID: id, State: domain.StateReady})
}

// handleList handles GET /phrases
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	phrases, err := s.phrases.List(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, phrases)
}

// handleRemove handles DELETE /phrases/{id}
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.phrases.Remove(r.Context(), r.PathValue("id")); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSearch handles POST /search
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeText(w, r)
	if !ok {
		return
	}

	results, err := s.phrases.Search(r.Context(), req.Text)
	if err != nil {
		s.respondError(w, err)
		return
	}

	out := make([]searchResult, len(results))
	for i, res := range results {
		out[i] = searchResult{ID: res.ID, Text: res.Text, Score: res.Score, Percent: res.Percent()}
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) decodeText(w http.ResponseWriter, r *http.Request) (textRequest, bool) {
	var req textRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, domain.InvalidArgument("invalid request body: %v", err))
		return req, false
	}
	return req, true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "status", status, "error", err)
	}
	s.respondJSON(w, status, errorResponse{Error: err.Error()})
}

// StatusFor maps a service error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
