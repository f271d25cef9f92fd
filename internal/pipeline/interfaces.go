package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/dvloznov/fidoo-extractor/internal/fidoo"
)

// Reader is the paginated read capability of the API client.
type Reader interface {
	Read(ctx context.Context, req fidoo.ReadRequest) (*fidoo.Page, error)
}

// WatermarkStore persists one watermark per object name.
type WatermarkStore interface {
	// Get returns the stored watermark and whether one exists.
	Get(ctx context.Context, object string) (time.Time, bool, error)

	// Set replaces the watermark for object.
	Set(ctx context.Context, object string, watermark time.Time) error
}

// Sink receives finished table fragments.
type Sink interface {
	Write(ctx context.Context, fragment *domain.TableFragment) error
}

// RunRecorder keeps an audit trail of object extractions.
type RunRecorder interface {
	// StartObjectRun records a RUNNING extraction and returns its id.
	StartObjectRun(ctx context.Context, runID, object string) (string, error)

	// MarkObjectRunFailed records a failure. Errors are logged, not returned.
	MarkObjectRunFailed(ctx context.Context, objectRunID string, runErr error)

	// MarkObjectRunSucceeded records the final summary of a finished object.
	MarkObjectRunSucceeded(ctx context.Context, objectRunID string, result ObjectResult) error
}

// nopRecorder is used when no audit trail is configured.
type nopRecorder struct{}

func (nopRecorder) StartObjectRun(context.Context, string, string) (string, error) { return "", nil }
func (nopRecorder) MarkObjectRunFailed(context.Context, string, error)             {}
func (nopRecorder) MarkObjectRunSucceeded(context.Context, string, ObjectResult) error {
	return nil
}
