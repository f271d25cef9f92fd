package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/dvloznov/fidoo-extractor/internal/metrics"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Options are the per-run switches.
type Options struct {
	Incremental          bool
	Dependents           bool
	PageSize             int
	DependentConcurrency int
}

// Config wires an Assembler.
type Config struct {
	Reader   Reader
	Store    WatermarkStore
	Sink     Sink
	Recorder RunRecorder
	Clock    clockwork.Clock
	Options  Options
}

// Assembler runs objects one after another through the extraction steps.
// One object's failure never stops the others; only an authentication
// failure or cancellation ends the run early.
type Assembler struct {
	fetcher  *Fetcher
	resolver *DependentResolver
	tracker  *Tracker
	sink     Sink
	recorder RunRecorder
	clock    clockwork.Clock
	opts     Options
}

// NewAssembler validates cfg and builds an Assembler.
func NewAssembler(cfg Config) (*Assembler, error) {
	if cfg.Reader == nil {
		return nil, errors.New("NewAssembler: reader is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("NewAssembler: watermark store is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("NewAssembler: sink is required")
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	fetcher := NewFetcher(cfg.Reader, cfg.Options.PageSize)
	return &Assembler{
		fetcher:  fetcher,
		resolver: NewDependentResolver(fetcher, cfg.Options.DependentConcurrency),
		tracker:  NewTracker(cfg.Store, cfg.Clock),
		sink:     cfg.Sink,
		recorder: cfg.Recorder,
		clock:    cfg.Clock,
		opts:     cfg.Options,
	}, nil
}

func (a *Assembler) pipeline() *Pipeline {
	return NewPipeline(
		&PlanStep{Tracker: a.tracker, Incremental: a.opts.Incremental},
		&FetchStep{Fetcher: a.fetcher},
		&ResolveDependentsStep{Resolver: a.resolver, Enabled: a.opts.Dependents},
		&InferKeysStep{},
		&HandoffStep{Sink: a.sink},
		&CommitStep{Tracker: a.tracker},
	)
}

// Run extracts defs in order and returns the per-object summary. The error
// is non-nil only when the run was cut short; the summary is still returned.
func (a *Assembler) Run(ctx context.Context, defs []domain.ObjectDefinition) (*RunResult, error) {
	return a.RunWithID(ctx, uuid.NewString(), defs)
}

// RunWithID is Run with a caller-chosen run id.
func (a *Assembler) RunWithID(ctx context.Context, runID string, defs []domain.ObjectDefinition) (*RunResult, error) {
	log := logger.FromContext(ctx)
	res := &RunResult{RunID: runID, StartedAt: a.clock.Now().UTC()}

	log.Info().
		Str("run_id", runID).
		Int("objects", len(defs)).
		Bool("incremental", a.opts.Incremental).
		Bool("dependents", a.opts.Dependents).
		Msg("Starting extraction run")

	var abortErr error
	for _, def := range defs {
		if abortErr != nil {
			res.Objects = append(res.Objects, ObjectResult{
				Object: def.Name,
				Status: StatusFailed,
				Stage:  StagePending,
				Error:  fmt.Sprintf("run aborted: %v", abortErr),
				Err:    abortErr,
			})
			metrics.ObjectRunsTotal.WithLabelValues(def.Name, string(StatusFailed)).Inc()
			continue
		}

		or := a.RunObject(ctx, runID, def)
		res.Objects = append(res.Objects, or)
		if or.Err != nil && isRunFatal(or.Err) {
			abortErr = or.Err
		}
	}

	res.FinishedAt = a.clock.Now().UTC()
	counts := res.Counts()
	log.Info().
		Str("run_id", runID).
		Int("complete", counts[StatusComplete]).
		Int("complete_with_warnings", counts[StatusCompleteWithWarnings]).
		Int("failed", counts[StatusFailed]).
		Msg("Extraction run finished")

	if abortErr != nil {
		return res, fmt.Errorf("%w: %w", ErrRunAborted, abortErr)
	}
	return res, nil
}

// RunObject extracts a single object. It never returns an error: failures
// are reported in the result.
func (a *Assembler) RunObject(ctx context.Context, runID string, def domain.ObjectDefinition) ObjectResult {
	started := a.clock.Now().UTC()
	ctx = logger.WithObject(ctx, runID, def.Name)
	log := logger.FromContext(ctx)

	objectRunID, err := a.recorder.StartObjectRun(ctx, runID, def.Name)
	if err != nil {
		log.Warn().Err(err).Msg("Could not record object run start")
	}

	state := NewObjectState(runID, def)
	execErr := a.pipeline().Execute(ctx, state)

	res := ObjectResult{
		Object:             def.Name,
		Stage:              state.Stage,
		LoadMode:           state.Plan.Mode,
		RecordsFetched:     state.Fetched,
		Pages:              state.Pages,
		DependentFetches:   state.DependentFetches,
		Fragments:          state.Summaries,
		Warnings:           state.Warnings,
		WatermarkCommitted: state.Committed,
		StartedAt:          started,
		FinishedAt:         a.clock.Now().UTC(),
	}
	if state.Committed {
		wm := state.Plan.StartedAt
		res.Watermark = &wm
	}

	switch {
	case execErr != nil:
		res.Status = StatusFailed
		res.Err = execErr
		res.Error = execErr.Error()
		log.Error().Err(execErr).Str("stage", string(state.Stage)).Msg("Object extraction failed")
		if objectRunID != "" {
			a.recorder.MarkObjectRunFailed(ctx, objectRunID, execErr)
		}
	case len(state.Warnings) > 0:
		res.Status = StatusCompleteWithWarnings
	default:
		res.Status = StatusComplete
	}

	if execErr == nil {
		log.Info().
			Str("status", string(res.Status)).
			Int("records", res.RecordsFetched).
			Int("tables", len(res.Fragments)).
			Bool("watermark_committed", res.WatermarkCommitted).
			Msg("Object extraction finished")
		if objectRunID != "" {
			if err := a.recorder.MarkObjectRunSucceeded(ctx, objectRunID, res); err != nil {
				log.Warn().Err(err).Msg("Could not record object run result")
			}
		}
	}

	metrics.ObjectRunsTotal.WithLabelValues(def.Name, string(res.Status)).Inc()
	metrics.ObjectRunDuration.WithLabelValues(def.Name).Observe(res.FinishedAt.Sub(started).Seconds())
	return res
}

// Duration is how long the object took.
func (r ObjectResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
