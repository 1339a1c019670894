// Package server exposes the read-only telemetry status surface over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/sajadsoltanist/url-shortener/internal/pipeline"
)

// StatusSource provides the snapshot served by the status endpoint.
// Implemented by pipeline.Pipeline.
type StatusSource interface {
	Status() pipeline.Status
}

// StatusServer serves GET /api/telemetry/status and a liveness probe.
// When a token hash is configured, requests must carry the matching
// bearer token.
type StatusServer struct {
	source    StatusSource
	tokenHash []byte // bcrypt hash; empty disables auth
	srv       *http.Server
}

// NewStatusServer creates the server. tokenHash is the bcrypt hash of the
// accepted bearer token; pass "" to serve without authentication.
func NewStatusServer(source StatusSource, tokenHash string) *StatusServer {
	return &StatusServer{
		source:    source,
		tokenHash: []byte(tokenHash),
	}
}

// Start runs the HTTP server and blocks until Shutdown.
func (s *StatusServer) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/api/telemetry/status", s.AuthMiddleware(http.HandlerFunc(s.handleStatus)))

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	slog.Info("status server listening", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source.Status()); err != nil {
		slog.Error("status encode failed", "error", err)
	}
}

// AuthMiddleware checks the Authorization header (or a token query
// parameter) against the configured bcrypt token hash.
func (s *StatusServer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.tokenHash) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="telemetry"`)
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}
		if err := bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)); err != nil {
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
