// Package server exposes the analysis engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/verte-zerg/gradelens/internal/config"
	"github.com/verte-zerg/gradelens/internal/insight"
	"github.com/verte-zerg/gradelens/internal/logger"
	"github.com/verte-zerg/gradelens/internal/metrics"
	"github.com/verte-zerg/gradelens/internal/model"
)

// History persists analyses. *store.Store satisfies it.
type History interface {
	InsertAnalysis(ctx context.Context, meta model.AnalysisMeta, report model.ClassReport) (string, error)
	ListAnalyses(ctx context.Context, cfg model.HistoryConfig) ([]model.AnalysisSummary, error)
	GetAnalysis(ctx context.Context, id string) (model.StoredAnalysis, error)
}

// Insighter narrates a report.
type Insighter interface {
	Generate(ctx context.Context, report model.ClassReport) insight.Insights
}

// Deps are the collaborators behind the handlers. History may be nil.
type Deps struct {
	History  History
	Insights Insighter
	Metrics  *metrics.Manager
	Log      logger.Logger
}

// Server wires HTTP routes for the analysis API.
type Server struct {
	cfg     *config.ServerConfig
	history History
	insight Insighter
	metrics *metrics.Manager
	log     logger.Logger
	now     func() time.Time
}

// New builds a server. Missing insight, metrics and log deps get defaults.
func New(cfg *config.ServerConfig, deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Insights == nil {
		deps.Insights = insight.NewGenerator(nil, deps.Log)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewManager()
	}
	return &Server{
		cfg:     cfg,
		history: deps.History,
		insight: deps.Insights,
		metrics: deps.Metrics,
		log:     deps.Log,
		now:     time.Now,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.metricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(requireBearer(s.cfg.JWTSecret))
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/analyses", s.handleListAnalyses)
		r.Get("/analyses/{id}", s.handleGetAnalysis)
	})
	return r
}

// Run serves until ctx is canceled, then drains in-flight requests within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.JWTSecret == "" {
		s.log.Warn(ctx, "jwt secret is empty, api routes are unauthenticated")
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "http server listening", logger.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.log.Info(shutdownCtx, "http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
