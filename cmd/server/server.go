package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/content-core/pkg/contentcore"
	"github.com/tendant/content-core/pkg/contentcore/config"
	"github.com/tendant/content-core/pkg/contentcore/metrics"
	"github.com/tendant/content-core/pkg/contentcore/rpc"
)

// HTTPServer exposes the content core over HTTP
type HTTPServer struct {
	core      *contentcore.Core
	config    *config.Config
	functions *rpc.FunctionHandler
	rpcCtx    *rpc.Context
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewHTTPServer registers the built-in RPC functions over setup
func NewHTTPServer(core *contentcore.Core, setup *contentcore.Setup, searcher rpc.Searcher, collector *metrics.Collector, cfg *config.Config, logger *slog.Logger) (*HTTPServer, error) {
	functions := rpc.NewFunctionHandler()
	if err := functions.Register(rpc.ContentFunctions()...); err != nil {
		return nil, err
	}
	return &HTTPServer{
		core:      core,
		config:    cfg,
		functions: functions,
		rpcCtx:    rpc.NewContext(setup, searcher),
		metrics:   collector,
		logger:    logger,
	}, nil
}

// Routes sets up the HTTP routes
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	rpc.Routes(r, rpc.RouteOptions{
		Handler:      s.functions,
		Context:      s.rpcCtx,
		Logger:       s.logger,
		MaxBodyBytes: s.config.RPCMaxBodyBytes,
	})

	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	target, _ := s.config.Storage()
	render.JSON(w, r, map[string]any{
		"status":        "healthy",
		"environment":   s.config.Environment,
		"storage":       target.Kind,
		"content_types": s.core.Registry().ContentTypes(),
		"functions":     s.functions.Names(),
	})
}
