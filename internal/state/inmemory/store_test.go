package inmemory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Watermarks(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	wm := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.Set(ctx, "expense", wm))

	got, ok, err := s.Get(ctx, "expense")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, wm, got)

	all, err := s.Watermarks(ctx)
	require.NoError(t, err)
	all["card"] = wm
	_, ok, _ = s.Get(ctx, "card")
	assert.False(t, ok, "Watermarks must return a copy")

	require.NoError(t, s.Delete(ctx, "expense"))
	_, ok, _ = s.Get(ctx, "expense")
	assert.False(t, ok)
}

func TestStore_RecordRun(t *testing.T) {
	s := NewStore()
	assert.Nil(t, s.LastRun())

	require.NoError(t, s.RecordRun(context.Background(), state.RunInfo{RunID: "r1", Failed: 2}))
	require.NotNil(t, s.LastRun())
	assert.Equal(t, 2, s.LastRun().Failed)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Set(ctx, "transaction", time.Unix(int64(i), 0))
			_, _, _ = s.Get(ctx, "transaction")
		}(i)
	}
	wg.Wait()

	_, ok, err := s.Get(ctx, "transaction")
	require.NoError(t, err)
	assert.True(t, ok)
}
