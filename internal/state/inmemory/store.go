package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/state"
)

// Store is an in-memory implementation of state.Store.
// It is safe for concurrent use. Watermarks are lost on restart, so it
// suits tests and one-off full extractions.
type Store struct {
	mu         sync.RWMutex
	watermarks map[string]time.Time
	lastRun    *state.RunInfo
}

// NewStore creates an empty in-memory state store.
func NewStore() *Store {
	return &Store{
		watermarks: make(map[string]time.Time),
	}
}

// Get implements the WatermarkStore interface.
func (s *Store) Get(ctx context.Context, object string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wm, ok := s.watermarks[object]
	return wm, ok, nil
}

// Set implements the WatermarkStore interface.
func (s *Store) Set(ctx context.Context, object string, watermark time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.watermarks[object] = watermark.UTC()
	return nil
}

// Delete implements the state.Store interface.
func (s *Store) Delete(ctx context.Context, object string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.watermarks, object)
	return nil
}

// Watermarks implements the state.Store interface.
// The returned map is a copy.
func (s *Store) Watermarks(ctx context.Context) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]time.Time, len(s.watermarks))
	for k, v := range s.watermarks {
		out[k] = v
	}
	return out, nil
}

// RecordRun implements the state.RunLogger interface.
func (s *Store) RecordRun(ctx context.Context, info state.RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRun = &info
	return nil
}

// LastRun returns the most recently recorded run, if any.
func (s *Store) LastRun() *state.RunInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastRun == nil {
		return nil
	}
	cp := *s.lastRun
	return &cp
}

// Ensure Store implements the state interfaces.
var (
	_ state.Store     = (*Store)(nil)
	_ state.RunLogger = (*Store)(nil)
)
