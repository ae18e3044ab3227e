package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tendant/content-core/pkg/contentcore"
	"github.com/tendant/content-core/pkg/contentcore/config"
	"github.com/tendant/content-core/pkg/contentcore/events/redisstream"
	"github.com/tendant/content-core/pkg/contentcore/metrics"
	"github.com/tendant/content-core/pkg/contentcore/rpc"
	"github.com/tendant/content-core/pkg/contentcore/search/elastic"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Environment)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	backends, err := config.OpenBackends(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backends.Close()

	esClient, err := cfg.ElasticsearchClient()
	if err != nil {
		return err
	}

	coreOpts := []contentcore.Option{
		contentcore.WithLogger(logger),
		contentcore.WithRegistryOptions(cfg.RegistryOptions()...),
	}
	var searcher rpc.Searcher
	if esClient != nil {
		index := elastic.New(elastic.Config{Index: cfg.ElasticsearchIndex}, elastic.WithLogger(logger))
		coreOpts = append(coreOpts, contentcore.WithSearchIndex(index))
		searcher = index
	}

	core := contentcore.New(coreOpts...)
	setup := core.Setup()
	if err := registerContentTypes(ctx, setup, backends); err != nil {
		return err
	}

	collector := metrics.NewCollector()
	defer collector.Attach(setup.Events())()

	forwarder := redisstream.New(cfg.RedisClient(),
		redisstream.WithStream(cfg.EventStream),
		redisstream.WithLogger(logger),
	)
	defer forwarder.Attach(setup.Events())()

	if err := core.Start(ctx, contentcore.StartDeps{ESClient: esClient}); err != nil {
		return err
	}
	defer core.Stop()

	server, err := NewHTTPServer(core, setup, searcher, collector, cfg, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: server.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Content core server starting",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"storage", backends.Kind(),
			"search_index", esClient != nil,
			"event_stream", cfg.RedisAddress != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-quit:
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exiting")
	return nil
}
