package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerPlan(t *testing.T) {
	now := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	prior := now.Add(-24 * time.Hour)
	master := domain.ObjectDefinition{Name: "cost_center"}

	tests := []struct {
		name        string
		def         domain.ObjectDefinition
		stored      bool
		incremental bool
		wantMode    domain.LoadMode
		wantSince   bool
	}{
		{"no watermark", expenseDef, false, true, domain.LoadModeFullReplace, false},
		{"watermark and incremental", expenseDef, true, true, domain.LoadModeIncrementalAppend, true},
		{"watermark but full run", expenseDef, true, false, domain.LoadModeFullReplace, false},
		{"master data ignores incremental", master, true, true, domain.LoadModeFullReplace, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockWatermarkStore{Marks: map[string]time.Time{}}
			if tt.stored {
				store.Marks[tt.def.Name] = prior
			}
			tr := NewTracker(store, clockwork.NewFakeClockAt(now))

			plan, err := tr.Plan(context.Background(), tt.def, tt.incremental)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, plan.Mode)
			assert.Equal(t, now, plan.StartedAt)
			if tt.wantSince {
				require.NotNil(t, plan.Since)
				assert.Equal(t, prior, *plan.Since)
			} else {
				assert.Nil(t, plan.Since)
			}
		})
	}
}

func TestTrackerPlan_StoreError(t *testing.T) {
	store := &MockWatermarkStore{GetFunc: func(ctx context.Context, object string) (time.Time, bool, error) {
		return time.Time{}, false, errors.New("bucket unavailable")
	}}
	_, err := NewTracker(store, clockwork.NewFakeClock()).Plan(context.Background(), expenseDef, true)
	require.Error(t, err)
}

func TestTrackerShouldCommit(t *testing.T) {
	tr := NewTracker(&MockWatermarkStore{}, clockwork.NewFakeClock())
	prior := time.Now()

	assert.True(t, tr.ShouldCommit(expenseDef, FetchPlan{}, 0), "first run establishes a watermark")
	assert.True(t, tr.ShouldCommit(expenseDef, FetchPlan{Prior: &prior}, 3))
	assert.False(t, tr.ShouldCommit(expenseDef, FetchPlan{Prior: &prior}, 0), "nothing new keeps the watermark")
	assert.False(t, tr.ShouldCommit(domain.ObjectDefinition{Name: "vehicle"}, FetchPlan{}, 5))
}

func TestTrackerCommitStoresUTC(t *testing.T) {
	store := &MockWatermarkStore{}
	tr := NewTracker(store, clockwork.NewFakeClock())

	local := time.Date(2026, 5, 2, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	require.NoError(t, tr.Commit(context.Background(), "expense", local))

	got, ok, err := store.Get(context.Background(), "expense")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(local))
}
