// Package state persists per-object watermarks and the last run summary
// between extraction runs.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/pipeline"
)

// Store is a watermark store that can also list and reset watermarks.
type Store interface {
	pipeline.WatermarkStore

	// Delete forgets the watermark of object so its next run is a full fetch.
	Delete(ctx context.Context, object string) error

	// Watermarks returns every stored watermark.
	Watermarks(ctx context.Context) (map[string]time.Time, error)
}

// RunLogger records the outcome of a finished run next to the watermarks.
type RunLogger interface {
	RecordRun(ctx context.Context, info RunInfo) error
}

// RunInfo is the summary of the last run kept in the state document.
type RunInfo struct {
	RunID                string    `json:"run_id"`
	StartedAt            time.Time `json:"started_at"`
	FinishedAt           time.Time `json:"finished_at"`
	Complete             int       `json:"complete"`
	CompleteWithWarnings int       `json:"complete_with_warnings"`
	Failed               int       `json:"failed"`

	// ObjectCounts maps every table written in the run to its row count.
	ObjectCounts map[string]int `json:"-"`
}

// RunInfoFrom summarises a run result.
func RunInfoFrom(res *pipeline.RunResult) RunInfo {
	counts := res.Counts()
	return RunInfo{
		RunID:                res.RunID,
		StartedAt:            res.StartedAt,
		FinishedAt:           res.FinishedAt,
		Complete:             counts[pipeline.StatusComplete],
		CompleteWithWarnings: counts[pipeline.StatusCompleteWithWarnings],
		Failed:               counts[pipeline.StatusFailed],
		ObjectCounts:         res.RowCounts(),
	}
}

// Document is the persisted state layout shared by the file and GCS stores.
type Document struct {
	Watermarks   map[string]time.Time `json:"watermarks"`
	LastRun      *RunInfo             `json:"last_run,omitempty"`
	ObjectCounts map[string]int       `json:"object_counts,omitempty"`
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		Watermarks:   make(map[string]time.Time),
		ObjectCounts: make(map[string]int),
	}
}

// Decode parses a state document. Empty input is an empty document.
func Decode(data []byte) (*Document, error) {
	doc := NewDocument()
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("Decode: parsing state document: %w", err)
	}
	if doc.Watermarks == nil {
		doc.Watermarks = make(map[string]time.Time)
	}
	if doc.ObjectCounts == nil {
		doc.ObjectCounts = make(map[string]int)
	}
	return doc, nil
}

// Encode serialises the document as indented JSON.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("Encode: marshaling state document: %w", err)
	}
	return append(data, '\n'), nil
}

// Backend loads and saves the raw state document.
type Backend interface {
	// Load returns nil data when no document exists yet.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	// Location describes where the document lives, for logs.
	Location() string
}

// DocumentStore implements Store on top of a single JSON document. Every
// write is a load-modify-save of the whole document.
type DocumentStore struct {
	mu      sync.Mutex
	backend Backend
}

// NewDocumentStore wraps backend.
func NewDocumentStore(backend Backend) *DocumentStore {
	return &DocumentStore{backend: backend}
}

// Location reports where the document is stored.
func (s *DocumentStore) Location() string {
	return s.backend.Location()
}

// Document returns the current state document.
func (s *DocumentStore) Document(ctx context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *DocumentStore) load(ctx context.Context) (*Document, error) {
	data, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading state from %s: %w", s.backend.Location(), err)
	}
	return Decode(data)
}

func (s *DocumentStore) update(ctx context.Context, fn func(doc *Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	fn(doc)
	data, err := doc.Encode()
	if err != nil {
		return err
	}
	if err := s.backend.Save(ctx, data); err != nil {
		return fmt.Errorf("saving state to %s: %w", s.backend.Location(), err)
	}
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, object string) (time.Time, bool, error) {
	doc, err := s.Document(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	wm, ok := doc.Watermarks[object]
	return wm, ok, nil
}

func (s *DocumentStore) Set(ctx context.Context, object string, watermark time.Time) error {
	return s.update(ctx, func(doc *Document) {
		doc.Watermarks[object] = watermark.UTC()
	})
}

func (s *DocumentStore) Delete(ctx context.Context, object string) error {
	return s.update(ctx, func(doc *Document) {
		delete(doc.Watermarks, object)
	})
}

func (s *DocumentStore) Watermarks(ctx context.Context) (map[string]time.Time, error) {
	doc, err := s.Document(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Watermarks, nil
}

// RecordRun stores info as the last run and merges its table row counts.
func (s *DocumentStore) RecordRun(ctx context.Context, info RunInfo) error {
	return s.update(ctx, func(doc *Document) {
		doc.LastRun = &info
		for table, n := range info.ObjectCounts {
			doc.ObjectCounts[table] = n
		}
	})
}

var (
	_ Store     = (*DocumentStore)(nil)
	_ RunLogger = (*DocumentStore)(nil)
)
