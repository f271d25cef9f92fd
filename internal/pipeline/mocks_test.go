package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/dvloznov/fidoo-extractor/internal/fidoo"
)

// MockReader is a mock implementation of Reader for testing.
type MockReader struct {
	ReadFunc func(ctx context.Context, req fidoo.ReadRequest) (*fidoo.Page, error)

	mu       sync.Mutex
	Requests []fidoo.ReadRequest
}

func (m *MockReader) Read(ctx context.Context, req fidoo.ReadRequest) (*fidoo.Page, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, req)
	}
	return &fidoo.Page{Complete: true}, nil
}

func (m *MockReader) requestsFor(endpoint string) []fidoo.ReadRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []fidoo.ReadRequest
	for _, r := range m.Requests {
		if r.Endpoint == endpoint {
			out = append(out, r)
		}
	}
	return out
}

// servePages answers requests with the given pages, chained by offset
// tokens "p1", "p2", ...; the last page is marked complete.
func servePages(req fidoo.ReadRequest, pages ...[]map[string]any) (*fidoo.Page, error) {
	idx := 0
	if req.OffsetToken != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(req.OffsetToken, "p"))
		if err != nil {
			return nil, fmt.Errorf("bad token %q", req.OffsetToken)
		}
		idx = n
	}
	if idx >= len(pages) {
		return &fidoo.Page{Complete: true}, nil
	}
	page := &fidoo.Page{Records: pages[idx]}
	if idx == len(pages)-1 {
		page.Complete = true
	} else {
		page.NextOffsetToken = fmt.Sprintf("p%d", idx+1)
	}
	return page, nil
}

// MockSink is a mock implementation of Sink for testing.
type MockSink struct {
	WriteFunc func(ctx context.Context, fragment *domain.TableFragment) error

	mu        sync.Mutex
	Fragments map[string]*domain.TableFragment
	Order     []string
}

func (m *MockSink) Write(ctx context.Context, fragment *domain.TableFragment) error {
	if m.WriteFunc != nil {
		if err := m.WriteFunc(ctx, fragment); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fragments == nil {
		m.Fragments = make(map[string]*domain.TableFragment)
	}
	cp := *fragment
	cp.Rows = append([]domain.Row(nil), fragment.Rows...)
	m.Fragments[fragment.Name] = &cp
	m.Order = append(m.Order, fragment.Name)
	return nil
}

// MockWatermarkStore is a map-backed WatermarkStore with optional overrides.
type MockWatermarkStore struct {
	GetFunc func(ctx context.Context, object string) (time.Time, bool, error)
	SetFunc func(ctx context.Context, object string, watermark time.Time) error

	mu    sync.Mutex
	Marks map[string]time.Time
	Sets  int
}

func (m *MockWatermarkStore) Get(ctx context.Context, object string) (time.Time, bool, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, object)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	wm, ok := m.Marks[object]
	return wm, ok, nil
}

func (m *MockWatermarkStore) Set(ctx context.Context, object string, watermark time.Time) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, object, watermark)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Marks == nil {
		m.Marks = make(map[string]time.Time)
	}
	m.Marks[object] = watermark
	m.Sets++
	return nil
}

// MockRunRecorder is a mock implementation of RunRecorder for testing.
type MockRunRecorder struct {
	StartObjectRunFunc         func(ctx context.Context, runID, object string) (string, error)
	MarkObjectRunFailedFunc    func(ctx context.Context, objectRunID string, runErr error)
	MarkObjectRunSucceededFunc func(ctx context.Context, objectRunID string, result ObjectResult) error
}

func (m *MockRunRecorder) StartObjectRun(ctx context.Context, runID, object string) (string, error) {
	if m.StartObjectRunFunc != nil {
		return m.StartObjectRunFunc(ctx, runID, object)
	}
	return "object-run-" + object, nil
}

func (m *MockRunRecorder) MarkObjectRunFailed(ctx context.Context, objectRunID string, runErr error) {
	if m.MarkObjectRunFailedFunc != nil {
		m.MarkObjectRunFailedFunc(ctx, objectRunID, runErr)
	}
}

func (m *MockRunRecorder) MarkObjectRunSucceeded(ctx context.Context, objectRunID string, result ObjectResult) error {
	if m.MarkObjectRunSucceededFunc != nil {
		return m.MarkObjectRunSucceededFunc(ctx, objectRunID, result)
	}
	return nil
}

func rec(fields map[string]any) domain.Record {
	return domain.Record{Fields: fields}
}
