// Package app wires configuration into a ready-to-run extractor.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/fidoo-extractor/internal/catalog"
	"github.com/dvloznov/fidoo-extractor/internal/config"
	"github.com/dvloznov/fidoo-extractor/internal/fidoo"
	"github.com/dvloznov/fidoo-extractor/internal/gcsuploader"
	infrabq "github.com/dvloznov/fidoo-extractor/internal/infra/bigquery"
	"github.com/dvloznov/fidoo-extractor/internal/jobs"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/dvloznov/fidoo-extractor/internal/pipeline"
	"github.com/dvloznov/fidoo-extractor/internal/sink/csv"
	"github.com/dvloznov/fidoo-extractor/internal/sink/duckdb"
	"github.com/dvloznov/fidoo-extractor/internal/state"
	"github.com/dvloznov/fidoo-extractor/internal/state/file"
	stategcs "github.com/dvloznov/fidoo-extractor/internal/state/gcs"
	statemem "github.com/dvloznov/fidoo-extractor/internal/state/inmemory"
	"github.com/jonboulle/clockwork"
)

// App holds the long-lived collaborators of an extractor process.
type App struct {
	Config  *config.Config
	Catalog *catalog.Catalog

	// Client is nil when Reader was supplied directly.
	Client   *fidoo.Client
	Reader   pipeline.Reader
	Store    state.Store
	Sink     pipeline.Sink
	Recorder pipeline.RunRecorder
	Clock    clockwork.Clock

	closers []func() error
}

// New builds an App from a validated configuration. Close releases every
// client it opened.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	client, err := fidoo.NewClient(cfg.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("New: creating fidoo client: %w", err)
	}

	a := &App{
		Config:  cfg,
		Catalog: catalog.New(),
		Client:  client,
		Reader:  client,
	}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	var repo *infrabq.Repository
	bigQuery := func() (*infrabq.Repository, error) {
		if repo != nil {
			return repo, nil
		}
		r, err := infrabq.NewRepository(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID)
		if err != nil {
			return nil, fmt.Errorf("wire: creating bigquery repository: %w", err)
		}
		a.closers = append(a.closers, r.Close)
		repo = r
		return r, nil
	}

	var storage *gcsuploader.GCSStorageService
	gcsStorage := func() (*gcsuploader.GCSStorageService, error) {
		if storage != nil {
			return storage, nil
		}
		s, err := gcsuploader.NewGCSStorageService(ctx)
		if err != nil {
			return nil, fmt.Errorf("wire: creating storage client: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		storage = s
		return s, nil
	}

	switch cfg.State.Backend {
	case config.BackendMemory:
		a.Store = statemem.NewStore()
	case config.BackendFile:
		a.Store = file.NewStore(cfg.State.Path)
	case config.BackendGCS:
		s, err := gcsStorage()
		if err != nil {
			return err
		}
		a.Store = stategcs.NewStore(s, cfg.State.Bucket, cfg.State.Object)
	case config.BackendBigQuery:
		r, err := bigQuery()
		if err != nil {
			return err
		}
		a.Store = infrabq.WatermarkStore{Repo: r}
	default:
		return fmt.Errorf("wire: unknown state backend %q", cfg.State.Backend)
	}

	switch cfg.Sink.Backend {
	case config.BackendCSV:
		s := csv.NewSink(cfg.Sink.Dir, cfg.Sink.KeboolaBucket)
		s.Header = cfg.Sink.Header
		a.Sink = s
	case config.BackendGCS:
		st, err := gcsStorage()
		if err != nil {
			return err
		}
		s := gcsuploader.NewFragmentSink(st, cfg.Sink.GCSBucket, cfg.Sink.GCSPrefix, cfg.Sink.KeboolaBucket)
		s.Header = cfg.Sink.Header
		a.Sink = s
	case config.BackendBigQuery:
		r, err := bigQuery()
		if err != nil {
			return err
		}
		a.Sink = infrabq.Sink{Loader: r}
	case config.BackendDuckDB:
		s, err := duckdb.Open(cfg.Sink.DuckDBPath)
		if err != nil {
			return fmt.Errorf("wire: opening duckdb: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		a.Sink = s
	default:
		return fmt.Errorf("wire: unknown sink backend %q", cfg.Sink.Backend)
	}

	if cfg.BigQuery.AuditRuns {
		r, err := bigQuery()
		if err != nil {
			return err
		}
		a.Recorder = infrabq.RunRecorder{Repo: r}
	}
	return nil
}

// Close releases the clients opened by New, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Request overrides the configured run switches for one run.
type Request struct {
	RunID       string
	Objects     []string
	Incremental bool
	Dependents  bool
}

// DefaultRequest returns the run described by the configuration.
func (a *App) DefaultRequest() Request {
	return Request{
		Objects:     a.Config.Extraction.Objects,
		Incremental: a.Config.Extraction.Incremental,
		Dependents:  a.Config.Extraction.Dependents,
	}
}

// Extract runs one extraction and records its summary when the state store
// keeps run history. The returned error is set only for unknown objects,
// wiring problems or an aborted run; per-object failures are in the result.
func (a *App) Extract(ctx context.Context, req Request) (*pipeline.RunResult, error) {
	log := logger.FromContext(ctx)

	defs, err := a.Catalog.Resolve(req.Objects)
	if err != nil {
		return nil, fmt.Errorf("Extract: %w", err)
	}

	opts := a.Config.PipelineOptions()
	opts.Incremental = req.Incremental
	opts.Dependents = req.Dependents

	asm, err := pipeline.NewAssembler(pipeline.Config{
		Reader:   a.Reader,
		Store:    a.Store,
		Sink:     a.Sink,
		Recorder: a.Recorder,
		Clock:    a.Clock,
		Options:  opts,
	})
	if err != nil {
		return nil, fmt.Errorf("Extract: %w", err)
	}

	var res *pipeline.RunResult
	if req.RunID != "" {
		res, err = asm.RunWithID(ctx, req.RunID, defs)
	} else {
		res, err = asm.Run(ctx, defs)
	}

	if res != nil {
		if rl, ok := a.Store.(state.RunLogger); ok {
			if recErr := rl.RecordRun(ctx, state.RunInfoFrom(res)); recErr != nil {
				log.Warn().Err(recErr).Str("run_id", res.RunID).Msg("Failed to record run summary")
			}
		}
	}
	return res, err
}

// HandleJob runs an extraction job taken from the queue.
func (a *App) HandleJob(ctx context.Context, job jobs.Job) error {
	ej, ok := job.(*jobs.ExtractionJob)
	if !ok {
		return fmt.Errorf("HandleJob: unsupported job type %q", job.GetType())
	}

	res, err := a.Extract(ctx, Request{
		RunID:       ej.JobID,
		Objects:     ej.Objects,
		Incremental: ej.Incremental,
		Dependents:  ej.Dependents,
	})
	ej.Result = res
	return err
}
