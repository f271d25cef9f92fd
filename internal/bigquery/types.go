package bigquery

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/fidoo-extractor/internal/domain"
)

// StateRepository provides an interface for watermark persistence.
type StateRepository interface {
	// GetWatermark returns the stored watermark of object, if any.
	GetWatermark(ctx context.Context, object string) (time.Time, bool, error)

	// SetWatermark inserts or updates the watermark of object.
	SetWatermark(ctx context.Context, object string, watermark time.Time) error

	// DeleteWatermark removes the watermark of object.
	DeleteWatermark(ctx context.Context, object string) error

	// ListWatermarks returns every stored watermark row.
	ListWatermarks(ctx context.Context) ([]*ExtractorStateRow, error)
}

// RunRepository provides an interface for the extraction run audit table.
type RunRepository interface {
	// StartExtractionRun inserts a RUNNING row and returns its object_run_id.
	StartExtractionRun(ctx context.Context, runID, object string) (string, error)

	// MarkExtractionRunFailed sets status=FAILED. Errors are logged, not returned.
	MarkExtractionRunFailed(ctx context.Context, objectRunID string, runErr error)

	// MarkExtractionRunSucceeded records the object outcome.
	MarkExtractionRunSucceeded(ctx context.Context, objectRunID string, summary *ExtractionRunSummary) error

	// ListRecentExtractionRuns returns the newest rows first.
	ListRecentExtractionRuns(ctx context.Context, limit int) ([]*ExtractionRunRow, error)
}

// TableLoader provides an interface for loading fragments into tables.
type TableLoader interface {
	// LoadFragment loads the rows of f into the table of the same name.
	LoadFragment(ctx context.Context, f *domain.TableFragment) error
}

// ExtractorStateRow is one row of extractor_state.
type ExtractorStateRow struct {
	Object    string    `bigquery:"object"`     // REQUIRED
	Watermark time.Time `bigquery:"watermark"`  // REQUIRED
	UpdatedTS time.Time `bigquery:"updated_ts"` // REQUIRED
}

// ExtractionRunRow is one row of extraction_runs: one object within one run.
type ExtractionRunRow struct {
	ObjectRunID string `bigquery:"object_run_id"` // REQUIRED
	RunID       string `bigquery:"run_id"`        // REQUIRED
	Object      string `bigquery:"object"`        // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string `bigquery:"status"`        // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE
	LoadMode     string `bigquery:"load_mode"`     // NULLABLE

	RecordsFetched     bigquery.NullInt64 `bigquery:"records_fetched"`     // NULLABLE
	TablesWritten      bigquery.NullInt64 `bigquery:"tables_written"`      // NULLABLE
	WarningCount       bigquery.NullInt64 `bigquery:"warning_count"`       // NULLABLE
	WatermarkCommitted bigquery.NullBool  `bigquery:"watermark_committed"` // NULLABLE

	Metadata bigquery.NullJSON `bigquery:"metadata"` // NULLABLE
}

// ExtractionRunSummary is what MarkExtractionRunSucceeded records.
type ExtractionRunSummary struct {
	Status             string
	LoadMode           string
	RecordsFetched     int
	TablesWritten      int
	Warnings           []string
	WatermarkCommitted bool
	Fragments          []domain.FragmentSummary
}
