package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	wm := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, NewStore(path).Set(ctx, "travel_report", wm))

	got, ok, err := NewStore(path).Get(ctx, "travel_report")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, wm, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"travel_report": "2026-01-02T03:04:05Z"`)
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "state.json"))

	all, err := s.Watermarks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, _, err := NewStore(path).Get(context.Background(), "user")
	require.Error(t, err)
}

func TestNewStore_DefaultPath(t *testing.T) {
	assert.Equal(t, DefaultPath, NewStore("").Location())
}
