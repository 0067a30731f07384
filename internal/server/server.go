// Package server provides the HTTP API for taisaku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/moldworks/taisaku/internal/config"
	"github.com/moldworks/taisaku/internal/embedding"
	"github.com/moldworks/taisaku/internal/search"
	"github.com/moldworks/taisaku/internal/store"
)

// Server is the HTTP server for the taisaku API.
type Server struct {
	engine    *search.Engine
	snapshot  *store.Snapshot
	store     *store.Store
	embedder  embedding.Embedder
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
	startedAt time.Time

	systemPass   []byte
	registerPass []byte
}

// NewServer creates a server with the given dependencies. The passphrases
// named by the auth config must be present in the environment; their values
// never appear in config files or logs.
func NewServer(
	engine *search.Engine,
	snapshot *store.Snapshot,
	st *store.Store,
	embedder embedding.Embedder,
	cfg *config.Config,
	logger *zap.Logger,
) (*Server, error) {
	systemPass := os.Getenv(cfg.Auth.SystemPassphraseEnv)
	if systemPass == "" {
		return nil, fmt.Errorf("environment variable %s is not set (system passphrase)", cfg.Auth.SystemPassphraseEnv)
	}
	registerPass := os.Getenv(cfg.Auth.RegisterPassphraseEnv)
	if registerPass == "" {
		return nil, fmt.Errorf("environment variable %s is not set (register passphrase)", cfg.Auth.RegisterPassphraseEnv)
	}
	return &Server{
		engine:       engine,
		snapshot:     snapshot,
		store:        st,
		embedder:     embedder,
		config:       cfg,
		logger:       logger,
		startedAt:    time.Now(),
		systemPass:   []byte(systemPass),
		registerPass: []byte(registerPass),
	}, nil
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(s.requireSystem)
		api.Post("/search", s.handleSearch)
		api.Get("/incidents", s.handleListIncidents)
		api.With(s.requireRegister).Post("/incidents", s.handleAddIncident)
		api.Get("/options", s.handleOptions)
		api.Get("/export", s.handleExport)
		api.Get("/status", s.handleStatus)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
