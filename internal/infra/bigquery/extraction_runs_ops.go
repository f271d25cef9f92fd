package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/fidoo-extractor/internal/bigquery"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/dvloznov/fidoo-extractor/internal/pipeline"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// Run statuses stored in extraction_runs.status.
const (
	RunStatusRunning = "RUNNING"
	RunStatusFailed  = "FAILED"
)

// StartExtractionRunWithClient inserts a RUNNING row into extraction_runs and
// returns the generated object_run_id.
func StartExtractionRunWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID, object string) (string, error) {
	objectRunID := uuid.NewString()

	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			object_run_id,
			run_id,
			object,
			started_ts,
			status
		)
		VALUES (
			@object_run_id,
			@run_id,
			@object,
			@started_ts,
			@status
		)
	`, ds.Table(extractionRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "object_run_id", Value: objectRunID},
		{Name: "run_id", Value: runID},
		{Name: "object", Value: object},
		{Name: "started_ts", Value: time.Now().UTC()},
		{Name: "status", Value: RunStatusRunning},
	}

	if err := runAndWait(ctx, q); err != nil {
		return "", fmt.Errorf("StartExtractionRun: %w", err)
	}
	return objectRunID, nil
}

// MarkExtractionRunFailedWithClient sets status=FAILED, finished_ts and
// error_message. Failures are logged only.
func MarkExtractionRunFailedWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, objectRunID string, runErr error) {
	log := logger.FromContext(ctx)

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE object_run_id = @object_run_id
	`, ds.Table(extractionRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusFailed},
		{Name: "finished_ts", Value: time.Now().UTC()},
		{Name: "error_message", Value: truncateError(runErr)},
		{Name: "object_run_id", Value: objectRunID},
	}

	if err := runAndWait(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("object_run_id", objectRunID).
			Msg("MarkExtractionRunFailed: update failed")
	}
}

// MarkExtractionRunSucceededWithClient records the outcome of an object that
// finished, with or without warnings.
func MarkExtractionRunSucceededWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, objectRunID string, summary *bq.ExtractionRunSummary) error {
	metadata, err := json.Marshal(map[string]any{
		"warnings":  summary.Warnings,
		"fragments": summary.Fragments,
	})
	if err != nil {
		return fmt.Errorf("MarkExtractionRunSucceeded: marshaling metadata: %w", err)
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = "",
		    load_mode = @load_mode,
		    records_fetched = @records_fetched,
		    tables_written = @tables_written,
		    warning_count = @warning_count,
		    watermark_committed = @watermark_committed,
		    metadata = PARSE_JSON(@metadata)
		WHERE object_run_id = @object_run_id
	`, ds.Table(extractionRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: summary.Status},
		{Name: "finished_ts", Value: time.Now().UTC()},
		{Name: "load_mode", Value: summary.LoadMode},
		{Name: "records_fetched", Value: summary.RecordsFetched},
		{Name: "tables_written", Value: summary.TablesWritten},
		{Name: "warning_count", Value: len(summary.Warnings)},
		{Name: "watermark_committed", Value: summary.WatermarkCommitted},
		{Name: "metadata", Value: string(metadata)},
		{Name: "object_run_id", Value: objectRunID},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("MarkExtractionRunSucceeded: %w", err)
	}
	return nil
}

// ListRecentExtractionRunsWithClient returns the newest extraction_runs rows.
func ListRecentExtractionRunsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, limit int) ([]*bq.ExtractionRunRow, error) {
	if limit <= 0 {
		limit = 100
	}
	q := client.Query(fmt.Sprintf(`
		SELECT
			object_run_id,
			run_id,
			object,
			started_ts,
			finished_ts,
			status,
			error_message,
			load_mode,
			records_fetched,
			tables_written,
			warning_count,
			watermark_committed,
			metadata
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, ds.Table(extractionRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentExtractionRuns: reading query: %w", err)
	}

	var rows []*bq.ExtractionRunRow
	for {
		var row bq.ExtractionRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentExtractionRuns: iterating: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

// SummaryFromResult converts an object result for the audit table.
func SummaryFromResult(r pipeline.ObjectResult) *bq.ExtractionRunSummary {
	return &bq.ExtractionRunSummary{
		Status:             string(r.Status),
		LoadMode:           string(r.LoadMode),
		RecordsFetched:     r.RecordsFetched,
		TablesWritten:      len(r.Fragments),
		Warnings:           r.Warnings,
		WatermarkCommitted: r.WatermarkCommitted,
		Fragments:          r.Fragments,
	}
}
