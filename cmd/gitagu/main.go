package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"github.com/microsoft/gitagu/internal/agent"
	"github.com/microsoft/gitagu/internal/analyzer"
	"github.com/microsoft/gitagu/internal/config"
	"github.com/microsoft/gitagu/internal/devin"
	"github.com/microsoft/gitagu/internal/github"
	"github.com/microsoft/gitagu/internal/metrics"
	"github.com/microsoft/gitagu/internal/model"
)

const serviceVersion = "1.0.0"

// Server represents the HTTP server for the gitagu backend
type Server struct {
	config       *config.Config
	metrics      *metrics.Metrics
	fetcher      *github.Fetcher
	orchestrator *analyzer.Orchestrator
	devinClient  *devin.Client
	httpServer   *http.Server
}

// NewServer creates a new server instance
func NewServer() (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	m := metrics.New()

	ghClient, err := github.Shared(cfg, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	fetcher := github.NewFetcher(ghClient, m)

	// The analysis endpoints need an agent backend; the snapshot endpoints
	// do not. Without an API key the service still serves repo-info.
	var orchestrator *analyzer.Orchestrator
	if cfg.OpenAIAPIKey != "" {
		backend, err := agent.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.ModelName)
		if err != nil {
			return nil, fmt.Errorf("failed to create agent backend: %w", err)
		}
		backend.SetTimeout(cfg.GetAgentTimeout())
		orchestrator = analyzer.New(fetcher, backend, m)
	} else {
		logger.Warn("OPENAI_API_KEY not set, analysis endpoints disabled")
	}

	server := &Server{
		config:       cfg,
		metrics:      m,
		fetcher:      fetcher,
		orchestrator: orchestrator,
		devinClient:  devin.NewClient(cfg.DevinBaseURL),
	}

	mux := http.NewServeMux()
	server.setupRoutes(mux)

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      server.corsMiddleware(server.loggingMiddleware(server.metricsMiddleware(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // analysis runs stream for a while
		IdleTimeout:  120 * time.Second,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/analyze/stream", s.handleAnalyzeStream)
	mux.HandleFunc("GET /api/repo-info/{owner}/{repo}", s.handleRepoInfo)
	mux.HandleFunc("POST /api/breakdown-tasks", s.handleBreakdownTasks)
	mux.HandleFunc("POST /api/create-devin-session", s.handleCreateDevinSession)
	mux.Handle("GET "+s.config.MetricsPath, promhttp.Handler())
}

// Start starts the server
func (s *Server) Start(ctx context.Context) error {
	logger.WithField("addr", s.httpServer.Addr).Info("starting gitagu backend")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("shutting down gitagu backend")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	logger.Info("gitagu backend stopped")
	return nil
}

// handleRoot handles the root endpoint
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "gitagu Backend API",
		"status":  "healthy",
		"version": serviceVersion,
	})
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{
		Status:    "healthy",
		Service:   "gitagu Backend",
		Timestamp: time.Now(),
		Version:   serviceVersion,
	})
}

// handleAnalyze runs a full analysis and returns the final result. Stage
// failures are carried inside the response body, never as a 5xx.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAnalysisRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	resp := s.orchestrator.RunAnalysis(ctx, *req, nil)
	writeJSON(w, http.StatusOK, resp)
}

// handleAnalyzeStream runs a full analysis, streaming progress events over
// SSE before the final result event
func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAnalysisRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	sink := func(update model.AnalysisProgressUpdate) {
		writeSSE(w, flusher, "progress", update)
	}

	resp := s.orchestrator.RunAnalysis(ctx, *req, sink)
	writeSSE(w, flusher, "result", resp)
}

// decodeAnalysisRequest parses and validates an analysis request, writing
// the error response itself when validation fails
func (s *Server) decodeAnalysisRequest(w http.ResponseWriter, r *http.Request) (*model.AnalysisRequest, bool) {
	if s.orchestrator == nil {
		http.Error(w, "agent backend not configured", http.StatusServiceUnavailable)
		return nil, false
	}

	var req model.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return nil, false
	}

	if req.Owner == "" || req.Repo == "" || req.AgentID == "" {
		http.Error(w, "owner, repo and agent_id are required", http.StatusBadRequest)
		return nil, false
	}

	req.AgentID = agent.CanonicalAgentID(req.AgentID)
	return &req, true
}

// handleRepoInfo returns a full repository snapshot
func (s *Server) handleRepoInfo(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	repo := r.PathValue("repo")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	snapshot, err := s.fetcher.GetRepositorySnapshot(ctx, owner, repo)
	if err != nil {
		logger.WithError(err).WithField("repo", owner+"/"+repo).Error("snapshot fetch failed")
		http.Error(w, "Failed to fetch repository data", http.StatusInternalServerError)
		return
	}
	if snapshot == nil {
		http.Error(w, "Repository not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// handleBreakdownTasks splits a free-form request into tasks
func (s *Server) handleBreakdownTasks(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		http.Error(w, "agent backend not configured", http.StatusServiceUnavailable)
		return
	}

	var req model.TaskBreakdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	breakdown, err := s.orchestrator.BreakdownUserRequest(r.Context(), req.Request)
	if err != nil {
		if errors.Is(err, analyzer.ErrEmptyRequest) {
			http.Error(w, "request is required", http.StatusBadRequest)
			return
		}
		logger.WithError(err).Error("task breakdown failed")
		http.Error(w, "Task breakdown failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, breakdown)
}

// handleCreateDevinSession creates a Devin session with a caller-supplied key
func (s *Server) handleCreateDevinSession(w http.ResponseWriter, r *http.Request) {
	var req model.DevinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if req.APIKey == "" || req.Prompt == "" {
		http.Error(w, "api_key and prompt are required", http.StatusBadRequest)
		return
	}

	session, err := s.devinClient.CreateSession(r.Context(), req)
	if err != nil {
		logger.WithError(err).Error("devin session creation failed")
		http.Error(w, "Failed to create Devin session", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// corsMiddleware applies the configured CORS policy
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(s.config.CORSOrigins))
	for _, origin := range s.config.CORSOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		logger.WithFields(logger.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapper.statusCode,
			"duration": time.Since(start).String(),
			"remote":   r.RemoteAddr,
		}).Info("request handled")
	})
}

// metricsMiddleware records metrics for HTTP requests
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		duration := time.Since(start).Seconds()
		s.metrics.RecordHTTPRequest(r.Method, r.URL.Path, fmt.Sprintf("%d", wrapper.statusCode))
		s.metrics.RecordHTTPDuration(r.Method, r.URL.Path, duration)
	})
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets wrapped handlers stream SSE through the middleware chain
func (rw *responseWrapper) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		logger.WithError(err).Error("failed to encode SSE event")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

// main is the entry point
func main() {
	logger.SetFormatter(&logger.JSONFormatter{})

	server, err := NewServer()
	if err != nil {
		logger.WithError(err).Fatal("failed to create server")
	}

	ctx := context.Background()
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("failed to start server")
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	logger.Info("gitagu backend started successfully")
	<-c

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("failed to shutdown server gracefully")
	}
}
