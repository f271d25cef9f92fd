package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/fidoo-extractor/internal/bigquery"
	"google.golang.org/api/iterator"
)

// GetWatermarkWithClient reads the watermark of object from extractor_state.
func GetWatermarkWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, object string) (time.Time, bool, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT object, watermark, updated_ts
		FROM %s
		WHERE object = @object
		LIMIT 1
	`, ds.Table(extractorStateTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "object", Value: object},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("GetWatermark: reading query: %w", err)
	}

	var row bq.ExtractorStateRow
	err = it.Next(&row)
	if err == iterator.Done {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("GetWatermark: iterating: %w", err)
	}
	return row.Watermark.UTC(), true, nil
}

// SetWatermarkWithClient upserts the watermark of object with a MERGE.
func SetWatermarkWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, object string, watermark time.Time) error {
	q := client.Query(fmt.Sprintf(`
		MERGE %s AS t
		USING (SELECT @object AS object, @watermark AS watermark, @updated_ts AS updated_ts) AS s
		ON t.object = s.object
		WHEN MATCHED THEN
			UPDATE SET watermark = s.watermark, updated_ts = s.updated_ts
		WHEN NOT MATCHED THEN
			INSERT (object, watermark, updated_ts) VALUES (s.object, s.watermark, s.updated_ts)
	`, ds.Table(extractorStateTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "object", Value: object},
		{Name: "watermark", Value: watermark.UTC()},
		{Name: "updated_ts", Value: time.Now().UTC()},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("SetWatermark: %w", err)
	}
	return nil
}

// DeleteWatermarkWithClient removes the watermark of object.
func DeleteWatermarkWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, object string) error {
	q := client.Query(fmt.Sprintf(`
		DELETE FROM %s
		WHERE object = @object
	`, ds.Table(extractorStateTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "object", Value: object},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("DeleteWatermark: %w", err)
	}
	return nil
}

// ListWatermarksWithClient returns every extractor_state row ordered by object.
func ListWatermarksWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]*bq.ExtractorStateRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT object, watermark, updated_ts
		FROM %s
		ORDER BY object
	`, ds.Table(extractorStateTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListWatermarks: reading query: %w", err)
	}

	var rows []*bq.ExtractorStateRow
	for {
		var row bq.ExtractorStateRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListWatermarks: iterating: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

// runAndWait runs a DML query and waits for it to finish.
func runAndWait(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
