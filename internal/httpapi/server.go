// Package httpapi is the daemon's HTTP surface (C11): liveness, the
// GitHub webhook sink, the read-only preview listing, manual cleanup, and
// API documentation.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/previewd/orchestrator/internal/audit"
	"github.com/previewd/orchestrator/internal/tracker"
	"github.com/previewd/orchestrator/internal/webhook"
)

// maxRequestBodySize caps every request body to guard against memory
// exhaustion (spec.md §4.11: 10 MB).
const maxRequestBodySize = 10 * 1024 * 1024

// Tracker is the read surface GET /api/previews needs.
type Tracker interface {
	GetAllDeployments() []tracker.Deployment
}

// Server serves the daemon's HTTP API.
type Server struct {
	port      int
	webhook   *webhook.Handler
	tracker   Tracker
	audit     *audit.Logger
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// NewServer builds a Server; Start actually binds the listener.
func NewServer(port int, webhookHandler *webhook.Handler, tr Tracker, auditLogger *audit.Logger, logger *slog.Logger) *Server {
	return &Server{
		port:    port,
		webhook: webhookHandler,
		tracker: tr,
		audit:   auditLogger,
		logger:  logger.With("component", "httpapi"),
	}
}

// Start builds the route table and begins serving in the background.
func (s *Server) Start() {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.wrap(s.handleHealth))
	mux.HandleFunc("/webhook/github", s.wrap(s.handleWebhook))
	mux.HandleFunc("/api/previews", s.wrap(s.handlePreviews))
	mux.HandleFunc("/api/previews/", s.wrap(s.handlePreviewByID))
	mux.HandleFunc("/openapi.json", s.wrap(s.handleOpenAPISpec))
	mux.HandleFunc("/api-docs", s.wrap(s.handleAPIDocs))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API", "port", s.port)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP API server failed", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down, letting in-flight requests finish.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("stopping HTTP API")
	return s.server.Shutdown(ctx)
}

// wrap applies the request-scoped middleware chain (outermost to
// innermost: panic recovery, body-size limit, structured access log).
func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	return s.recoverPanics(s.limitBody(s.logRequest(h)))
}

func (s *Server) recoverPanics(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered in HTTP handler", "error", rec, "path", r.URL.Path, "stack", string(debug.Stack()))
				s.respondError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next(w, r)
	}
}

func (s *Server) limitBody(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next(w, r)
	}
}

func (s *Server) logRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	}
}

// statusRecorder captures the status code a handler actually writes so
// logRequest can report it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if !webhook.VerifySignature(s.webhook.Secret, body, signature) {
		s.audit.LogWebhookRejected("invalid signature")
		s.respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		return
	}

	evt, err := webhook.ParsePullRequestEvent(body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.webhook.ValidateRepository(evt.Repository.FullName) {
		s.audit.LogWebhookRejected("repository not allowed: " + evt.Repository.FullName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "repository not allowed"})
		return
	}

	if err := s.webhook.HandleWebhook(r.Context(), evt); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePreviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"deployments": s.tracker.GetAllDeployments(),
	})
}

func (s *Server) handlePreviewByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/previews/"
	deploymentID := r.URL.Path[len(prefix):]
	if deploymentID == "" {
		s.respondError(w, http.StatusBadRequest, "deploymentId is required")
		return
	}

	found, err := s.webhook.ManualCleanup(r.Context(), deploymentID)
	if !found {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("unknown deployment %q", deploymentID))
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "removed", "deploymentId": deploymentID})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encoding JSON response failed", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
