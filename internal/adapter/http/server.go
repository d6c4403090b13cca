package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
	"github.com/couchcryptid/carbon-emission-etl/internal/model"
	"github.com/couchcryptid/carbon-emission-etl/internal/pipeline"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Runner starts scoring runs and reports their status.
type Runner interface {
	Run(ctx context.Context, d domain.Domain) (pipeline.RunResult, error)
	RunAll(ctx context.Context) ([]pipeline.RunResult, error)
	Status(d domain.Domain) (pipeline.RunStatus, error)
	Domains() []domain.Domain
}

// ResultReader loads committed result tables.
type ResultReader interface {
	ReadResults(d domain.Domain) (domain.Table, error)
}

// Config wires the API server.
type Config struct {
	Addr           string
	Ready          ReadinessChecker
	Runner         Runner
	Results        ResultReader
	Models         []model.Info
	AllowedOrigins []string
	RunTimeout     time.Duration
	Logger         *slog.Logger
}

// Server exposes the results API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	runner     Runner
	results    ResultReader
	models     []model.Info
	runTimeout time.Duration
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers every route.
func NewServer(cfg Config) *Server {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		runner:     cfg.Runner,
		results:    cfg.Results,
		models:     cfg.Models,
		runTimeout: cfg.RunTimeout,
		logger:     cfg.Logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", handleReady(cfg.Ready)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/run-analysis", s.handleRunAll).Methods(http.MethodPost)
	r.HandleFunc("/runs", s.handleStatuses).Methods(http.MethodGet)
	r.HandleFunc("/runs/{domain}", s.handleRun).Methods(http.MethodPost)
	r.HandleFunc("/runs/{domain}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/models", s.handleModels).Methods(http.MethodGet)

	const collection = "{collection:vehicles|industries}"
	r.HandleFunc("/"+collection, s.handleResults).Methods(http.MethodGet)
	r.HandleFunc("/"+collection+"/top", s.handleTop).Methods(http.MethodGet)
	r.HandleFunc("/"+collection+"/trend", s.handleTrend).Methods(http.MethodGet)
	r.HandleFunc("/download/"+collection, s.handleDownload).Methods(http.MethodGet)

	var h http.Handler = r
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	h = handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelError)),
	)(h)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RunTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	level := slog.LevelDebug
	if p.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	s.logger.Log(p.Request.Context(), level, "http request",
		"method", p.Request.Method,
		"path", p.URL.Path,
		"status", p.StatusCode,
		"bytes", p.Size,
		"remote", p.Request.RemoteAddr,
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
