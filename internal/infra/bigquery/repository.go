package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/fidoo-extractor/internal/bigquery"
	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/dvloznov/fidoo-extractor/internal/pipeline"
	"github.com/dvloznov/fidoo-extractor/internal/state"
)

// Re-export interfaces from shared package for backward compatibility
type StateRepository = bq.StateRepository
type RunRepository = bq.RunRepository
type TableLoader = bq.TableLoader

// Repository is the BigQuery implementation of the state, audit and
// loader interfaces. It holds a shared client for all operations.
type Repository struct {
	client *bigquery.Client
	ds     Dataset
}

// NewRepository creates a client for projectID writing to datasetID.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{
		client: client,
		ds:     Dataset{ProjectID: projectID, DatasetID: datasetID},
	}, nil
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Dataset returns the target dataset.
func (r *Repository) Dataset() Dataset {
	return r.ds
}

// GetWatermark delegates to GetWatermarkWithClient.
func (r *Repository) GetWatermark(ctx context.Context, object string) (time.Time, bool, error) {
	return GetWatermarkWithClient(ctx, r.client, r.ds, object)
}

// SetWatermark delegates to SetWatermarkWithClient.
func (r *Repository) SetWatermark(ctx context.Context, object string, watermark time.Time) error {
	return SetWatermarkWithClient(ctx, r.client, r.ds, object, watermark)
}

// DeleteWatermark delegates to DeleteWatermarkWithClient.
func (r *Repository) DeleteWatermark(ctx context.Context, object string) error {
	return DeleteWatermarkWithClient(ctx, r.client, r.ds, object)
}

// ListWatermarks delegates to ListWatermarksWithClient.
func (r *Repository) ListWatermarks(ctx context.Context) ([]*bq.ExtractorStateRow, error) {
	return ListWatermarksWithClient(ctx, r.client, r.ds)
}

// StartExtractionRun delegates to StartExtractionRunWithClient.
func (r *Repository) StartExtractionRun(ctx context.Context, runID, object string) (string, error) {
	return StartExtractionRunWithClient(ctx, r.client, r.ds, runID, object)
}

// MarkExtractionRunFailed delegates to MarkExtractionRunFailedWithClient.
func (r *Repository) MarkExtractionRunFailed(ctx context.Context, objectRunID string, runErr error) {
	MarkExtractionRunFailedWithClient(ctx, r.client, r.ds, objectRunID, runErr)
}

// MarkExtractionRunSucceeded delegates to MarkExtractionRunSucceededWithClient.
func (r *Repository) MarkExtractionRunSucceeded(ctx context.Context, objectRunID string, summary *bq.ExtractionRunSummary) error {
	return MarkExtractionRunSucceededWithClient(ctx, r.client, r.ds, objectRunID, summary)
}

// ListRecentExtractionRuns delegates to ListRecentExtractionRunsWithClient.
func (r *Repository) ListRecentExtractionRuns(ctx context.Context, limit int) ([]*bq.ExtractionRunRow, error) {
	return ListRecentExtractionRunsWithClient(ctx, r.client, r.ds, limit)
}

// LoadFragment delegates to LoadFragmentWithClient.
func (r *Repository) LoadFragment(ctx context.Context, f *domain.TableFragment) error {
	return LoadFragmentWithClient(ctx, r.client, r.ds, f)
}

var (
	_ StateRepository = (*Repository)(nil)
	_ RunRepository   = (*Repository)(nil)
	_ TableLoader     = (*Repository)(nil)
)

// WatermarkStore adapts a StateRepository to state.Store.
type WatermarkStore struct {
	Repo StateRepository
}

func (s WatermarkStore) Get(ctx context.Context, object string) (time.Time, bool, error) {
	return s.Repo.GetWatermark(ctx, object)
}

func (s WatermarkStore) Set(ctx context.Context, object string, watermark time.Time) error {
	return s.Repo.SetWatermark(ctx, object, watermark)
}

func (s WatermarkStore) Delete(ctx context.Context, object string) error {
	return s.Repo.DeleteWatermark(ctx, object)
}

func (s WatermarkStore) Watermarks(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.Repo.ListWatermarks(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		out[row.Object] = row.Watermark.UTC()
	}
	return out, nil
}

// RunRecorder adapts a RunRepository to pipeline.RunRecorder.
type RunRecorder struct {
	Repo RunRepository
}

func (r RunRecorder) StartObjectRun(ctx context.Context, runID, object string) (string, error) {
	return r.Repo.StartExtractionRun(ctx, runID, object)
}

func (r RunRecorder) MarkObjectRunFailed(ctx context.Context, objectRunID string, runErr error) {
	r.Repo.MarkExtractionRunFailed(ctx, objectRunID, runErr)
}

func (r RunRecorder) MarkObjectRunSucceeded(ctx context.Context, objectRunID string, result pipeline.ObjectResult) error {
	return r.Repo.MarkExtractionRunSucceeded(ctx, objectRunID, SummaryFromResult(result))
}

// Sink adapts a TableLoader to pipeline.Sink.
type Sink struct {
	Loader TableLoader
}

func (s Sink) Write(ctx context.Context, f *domain.TableFragment) error {
	return s.Loader.LoadFragment(ctx, f)
}

var (
	_ state.Store          = WatermarkStore{}
	_ pipeline.RunRecorder = RunRecorder{}
	_ pipeline.Sink        = Sink{}
)
