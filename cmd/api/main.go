package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/api"
	"github.com/dvloznov/fidoo-extractor/internal/api/handlers"
	"github.com/dvloznov/fidoo-extractor/internal/app"
	"github.com/dvloznov/fidoo-extractor/internal/config"
	"github.com/dvloznov/fidoo-extractor/internal/jobs/inmemory"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("FIDOO_CONFIG"), "Path to YAML config (or set FIDOO_CONFIG env)")
		port       = flag.String("port", "", "HTTP server port (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	log := logger.NewWithOptions(logger.Options{Debug: cfg.Debug, Component: "api"})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	if cfg.Server.APIToken == "" {
		log.Warn().Msg("No API token configured - endpoints are unauthenticated")
	}

	ctx := logger.WithContext(context.Background(), log)

	extractor, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise extractor")
	}
	defer extractor.Close()

	// Runs share one watermark store, so they are processed one at a time.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.QueueOptions{Workers: 1}, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Msg("Starting extraction worker")
		if err := jobQueue.Start(workerCtx, extractor.HandleJob); err != nil {
			log.Error().Err(err).Msg("Extraction worker stopped with error")
		}
	}()

	defaults := extractor.DefaultRequest()
	handler := api.NewRouter(api.Server{
		Runs: handlers.NewRunsHandler(jobQueue, jobStore, extractor.Catalog, handlers.RunDefaults{
			Objects:     defaults.Objects,
			Incremental: defaults.Incremental,
			Dependents:  defaults.Dependents,
		}),
		Objects:  handlers.NewObjectsHandler(extractor.Catalog),
		State:    handlers.NewStateHandler(extractor.Store, extractor.Catalog),
		Metrics:  promhttp.Handler(),
		APIToken: cfg.Server.APIToken,
		Log:      log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let an in-flight run finish before the worker context goes away.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
