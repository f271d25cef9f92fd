package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/jonboulle/clockwork"
)

// FetchPlan is the tracker's decision for one object.
type FetchPlan struct {
	// Since is the watermark to fetch from; nil means a full fetch.
	Since *time.Time
	Mode  domain.LoadMode

	// Prior is the stored watermark, if any.
	Prior *time.Time

	// StartedAt becomes the new watermark when the object commits.
	StartedAt time.Time
}

// Tracker reads and commits per-object watermarks.
type Tracker struct {
	store WatermarkStore
	clock clockwork.Clock
}

// NewTracker creates a tracker over store.
func NewTracker(store WatermarkStore, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{store: store, clock: clock}
}

// PriorWatermark returns the stored watermark for object, or nil.
func (t *Tracker) PriorWatermark(ctx context.Context, object string) (*time.Time, error) {
	wm, ok, err := t.store.Get(ctx, object)
	if err != nil {
		return nil, fmt.Errorf("PriorWatermark %s: %w", object, err)
	}
	if !ok {
		return nil, nil
	}
	return &wm, nil
}

// Plan decides between full and incremental fetch. Incremental mode needs
// the run to ask for it, the object to support it, and a stored watermark.
// For other objects the request is ignored.
func (t *Tracker) Plan(ctx context.Context, def domain.ObjectDefinition, incremental bool) (FetchPlan, error) {
	plan := FetchPlan{
		Mode:      domain.LoadModeFullReplace,
		StartedAt: t.clock.Now().UTC(),
	}
	if !def.Incremental {
		return plan, nil
	}

	prior, err := t.PriorWatermark(ctx, def.Name)
	if err != nil {
		return FetchPlan{}, err
	}
	plan.Prior = prior

	if incremental && prior != nil {
		plan.Since = prior
		plan.Mode = domain.LoadModeIncrementalAppend
	}
	return plan, nil
}

// ShouldCommit reports whether a finished object moves its watermark: only
// incremental-capable objects, and only when there was no watermark yet or
// the run actually fetched records.
func (t *Tracker) ShouldCommit(def domain.ObjectDefinition, plan FetchPlan, fetched int) bool {
	if !def.Incremental {
		return false
	}
	return plan.Prior == nil || fetched > 0
}

// Commit stores the new watermark for object.
func (t *Tracker) Commit(ctx context.Context, object string, watermark time.Time) error {
	if err := t.store.Set(ctx, object, watermark.UTC()); err != nil {
		return fmt.Errorf("Commit %s: %w", object, err)
	}
	return nil
}
