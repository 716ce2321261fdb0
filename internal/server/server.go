package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tulumbak/courierhook/internal/auth"
	"github.com/tulumbak/courierhook/internal/config"
	"github.com/tulumbak/courierhook/internal/database"
	"github.com/tulumbak/courierhook/internal/ledger"
	"github.com/tulumbak/courierhook/internal/metrics"
	"github.com/tulumbak/courierhook/internal/pipeline"
	"github.com/tulumbak/courierhook/internal/ratelimit"
	"github.com/tulumbak/courierhook/internal/registry"
)

// Server owns the HTTP listener and the long-lived pipeline dependencies.
type Server struct {
	cfg     *config.Config
	db      *database.DB
	version string

	pipeline     *pipeline.Pipeline
	sources      *registry.Service
	ledger       *ledger.Store
	jwtService   *auth.JWTService
	adminLimiter *ratelimit.Limiter

	httpServer *http.Server
	router     *Router
	stopStats  chan struct{}
}

// Deps bundles the wired subsystems the server exposes over HTTP.
type Deps struct {
	Pipeline     *pipeline.Pipeline
	Sources      *registry.Service
	Ledger       *ledger.Store
	JWTService   *auth.JWTService
	AdminLimiter *ratelimit.Limiter
}

func New(cfg *config.Config, db *database.DB, deps Deps, version string) *Server {
	srv := &Server{
		cfg:          cfg,
		db:           db,
		version:      version,
		pipeline:     deps.Pipeline,
		sources:      deps.Sources,
		ledger:       deps.Ledger,
		jwtService:   deps.JWTService,
		adminLimiter: deps.AdminLimiter,
		stopStats:    make(chan struct{}),
	}

	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv
}

func (s *Server) Start(ctx context.Context) error {
	log.Info().
		Str("addr", s.cfg.Server.Address()).
		Str("mode", s.cfg.Mode).
		Msg("Starting server")

	go s.publishDBStats()

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")
	close(s.stopStats)
	return s.httpServer.Shutdown(ctx)
}

// publishDBStats feeds connection-pool gauges until shutdown.
func (s *Server) publishDBStats() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := s.db.Stats()
			metrics.UpdateDBStats(stats.OpenConnections, stats.InUse, stats.Idle)
		case <-s.stopStats:
			return
		}
	}
}

func (s *Server) DB() *database.DB {
	return s.db
}

func (s *Server) Config() *config.Config {
	return s.cfg
}

func (s *Server) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

func (s *Server) Sources() *registry.Service {
	return s.sources
}

func (s *Server) Ledger() *ledger.Store {
	return s.ledger
}

func (s *Server) JWTService() *auth.JWTService {
	return s.jwtService
}
