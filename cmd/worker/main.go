package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/app"
	"github.com/dvloznov/fidoo-extractor/internal/config"
	"github.com/dvloznov/fidoo-extractor/internal/jobs/inmemory"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/jonboulle/clockwork"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("FIDOO_CONFIG"), "Path to YAML config (or set FIDOO_CONFIG env)")
		interval   = flag.Duration("interval", time.Hour, "Time between scheduled extraction runs")
		maxRetries = flag.Int("max-retries", 1, "Retries for a run that could not complete")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logger.NewWithOptions(logger.Options{Debug: cfg.Debug, JSON: true, Component: "worker"})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	extractor, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise extractor")
	}
	defer extractor.Close()

	clock := clockwork.NewRealClock()
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.QueueOptions{Workers: 1, MaxRetries: *maxRetries, Clock: clock}, jobStore)

	if err := jobQueue.Start(ctx, extractor.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Dur("interval", *interval).Msg("Worker service started")

	scheduled := make(chan error, 1)
	go func() {
		scheduled <- app.Schedule(ctx, clock, *interval, jobQueue, extractor.DefaultRequest())
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-scheduled:
		if err != nil {
			log.Error().Err(err).Msg("Scheduler stopped")
		}
	}

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer shutdownCancel()

	// Let the in-flight run finish, then stop scheduling.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	log.Info().Msg("Worker service exited")
}
