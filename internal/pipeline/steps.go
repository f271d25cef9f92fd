package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/dvloznov/fidoo-extractor/internal/metrics"
	"google.golang.org/api/iterator"
)

// PlanStep reads the watermark and picks the fetch mode. Pending -> Fetching.
type PlanStep struct {
	Tracker     *Tracker
	Incremental bool
}

func (s *PlanStep) Execute(ctx context.Context, state *ObjectState) error {
	plan, err := s.Tracker.Plan(ctx, state.Def, s.Incremental)
	if err != nil {
		return err
	}
	state.Plan = plan

	log := logger.FromContext(ctx)
	ev := log.Info().Str("load_mode", string(plan.Mode))
	if plan.Since != nil {
		ev = ev.Time("since", *plan.Since)
	}
	ev.Msg("Fetch planned")

	state.Stage = StageFetching
	return nil
}

// FetchStep consumes every page, flattening records as they arrive so only
// flat rows are held. Fetching -> Flattening.
type FetchStep struct {
	Fetcher *Fetcher
}

func (s *FetchStep) Execute(ctx context.Context, state *ObjectState) error {
	it := s.Fetcher.Fetch(ctx, state.Def, state.Plan.Since, nil)
	for {
		rec, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			state.Pages = it.Pages()
			return err
		}
		fl, err := Flatten(rec, state.Def.Name)
		if err != nil {
			return err
		}
		state.Tables.add(fl)
	}
	state.Fetched = it.Fetched()
	state.Pages = it.Pages()

	log := logger.FromContext(ctx)
	log.Info().
		Int("records", state.Fetched).
		Int("pages", state.Pages).
		Msg("Fetched all pages")

	state.Stage = StageFlattening
	return nil
}

// ResolveDependentsStep fetches and flattens dependent children once the
// parent key is known. Flattening -> KeyInference.
type ResolveDependentsStep struct {
	Resolver *DependentResolver
	Enabled  bool
}

func (s *ResolveDependentsStep) Execute(ctx context.Context, state *ObjectState) error {
	if !s.Enabled || len(state.Def.Dependents) == 0 {
		state.Stage = StageKeyInference
		return nil
	}

	log := logger.FromContext(ctx)
	key := state.Tables.resolveKey()
	iters := s.Resolver.Resolve(ctx, state.Def, state.Tables.main.rows, key.Columns)

	for _, dep := range state.Def.Dependents {
		it := iters[dep.Object.Name]
		tables := newObjectTables(dep.Object, state.Def.Name, domain.FragmentDependent)
		if it.KeyField() != "" {
			tables.main.addColumn(domain.SourceColumn(it.KeyField()))
		}

		for {
			rec, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return err
			}
			fl, err := Flatten(rec, dep.Object.Name)
			if err != nil {
				return fmt.Errorf("flattening %s: %w", dep.Object.Name, err)
			}
			tables.add(fl)
		}

		state.Warnings = append(state.Warnings, it.Warnings()...)
		state.DependentFetches += it.Requests()
		state.Dependents = append(state.Dependents, tables)

		log.Info().
			Str("dependent", dep.Object.Name).
			Int("parents", it.Requests()).
			Int("records", len(tables.main.rows)).
			Int("warnings", len(it.Warnings())).
			Msg("Resolved dependents")
	}

	state.Stage = StageKeyInference
	return nil
}

// InferKeysStep resolves every key and finalizes the fragments.
type InferKeysStep struct{}

func (s *InferKeysStep) Execute(ctx context.Context, state *ObjectState) error {
	log := logger.FromContext(ctx)

	all := append([]*objectTables{state.Tables}, state.Dependents...)
	for _, t := range all {
		if key := t.resolveKey(); key.Degraded {
			log.Warn().
				Str("table", t.main.name).
				Str("reason", key.Reason).
				Msg("Falling back to content-hash key")
		}
		state.Fragments = append(state.Fragments, t.finalize(state.Plan.Mode)...)
	}

	for _, f := range state.Fragments {
		if f.DegradedKey {
			metrics.DegradedKeyFragmentsTotal.WithLabelValues(f.Name).Inc()
		}
	}
	state.Tables = nil
	state.Dependents = nil
	return nil
}

// HandoffStep passes every fragment to the sink and releases its rows.
type HandoffStep struct {
	Sink Sink
}

func (s *HandoffStep) Execute(ctx context.Context, state *ObjectState) error {
	for i, f := range state.Fragments {
		if err := s.Sink.Write(ctx, f); err != nil {
			return fmt.Errorf("writing %s: %w", f.Name, err)
		}
		state.Summaries = append(state.Summaries, f.Summary())
		state.Fragments[i] = nil
	}
	state.Fragments = nil
	return nil
}

// CommitStep advances the watermark. KeyInference -> Complete. A failed
// commit leaves the prior watermark and is reported as a warning.
type CommitStep struct {
	Tracker *Tracker
}

func (s *CommitStep) Execute(ctx context.Context, state *ObjectState) error {
	if s.Tracker.ShouldCommit(state.Def, state.Plan, state.Fetched) {
		if err := s.Tracker.Commit(ctx, state.Def.Name, state.Plan.StartedAt); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("Watermark not committed")
			state.Warnings = append(state.Warnings, fmt.Sprintf("watermark not committed: %v", err))
		} else {
			state.Committed = true
		}
	}
	state.Stage = StageComplete
	return nil
}
