package bigquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/dvloznov/fidoo-extractor/internal/metrics"
)

// LoadFragmentWithClient loads f into the table of the same name with a load
// job. Full-replace fragments truncate the table; incremental fragments are
// appended and may add columns. Every column is a nullable STRING.
func LoadFragmentWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, f *domain.TableFragment) error {
	log := logger.FromContext(ctx)

	if len(f.Columns) == 0 {
		log.Debug().Str("table", f.Name).Msg("Skipping load of fragment without columns")
		return nil
	}

	data, err := encodeNDJSON(f)
	if err != nil {
		return fmt.Errorf("LoadFragment: %w", err)
	}

	src := bigquery.NewReaderSource(bytes.NewReader(data))
	src.SourceFormat = bigquery.JSON
	src.Schema = fragmentSchema(f)

	loader := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(ColumnName(f.Name)).LoaderFrom(src)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = writeDisposition(f.LoadMode)
	if loader.WriteDisposition == bigquery.WriteAppend {
		loader.SchemaUpdateOptions = []string{"ALLOW_FIELD_ADDITION"}
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("LoadFragment: starting load job for %s: %w", f.Name, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("LoadFragment: waiting for load job for %s: %w", f.Name, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("LoadFragment: load job for %s: %w", f.Name, err)
	}

	metrics.RowsWrittenTotal.WithLabelValues("bigquery", f.Name).Add(float64(len(f.Rows)))
	log.Debug().
		Str("table", f.Name).
		Str("job_id", job.ID()).
		Int("rows", len(f.Rows)).
		Msg("Loaded table into BigQuery")
	return nil
}

func writeDisposition(mode domain.LoadMode) bigquery.TableWriteDisposition {
	if mode == domain.LoadModeIncrementalAppend {
		return bigquery.WriteAppend
	}
	return bigquery.WriteTruncate
}

func fragmentSchema(f *domain.TableFragment) bigquery.Schema {
	schema := make(bigquery.Schema, len(f.Columns))
	for i, c := range f.Columns {
		schema[i] = &bigquery.FieldSchema{
			Name: ColumnName(c),
			Type: bigquery.StringFieldType,
		}
	}
	return schema
}

// encodeNDJSON renders rows as newline-delimited JSON objects keyed by
// column name, so appends match existing columns by name.
func encodeNDJSON(f *domain.TableFragment) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	obj := make(map[string]any, len(f.Columns))
	for i, row := range f.Rows {
		for _, c := range f.Columns {
			if s, ok := domain.FormatValue(row[c]); ok {
				obj[ColumnName(c)] = s
			} else {
				obj[ColumnName(c)] = nil
			}
		}
		if err := enc.Encode(obj); err != nil {
			return nil, fmt.Errorf("encoding row %d of %s: %w", i, f.Name, err)
		}
	}
	return buf.Bytes(), nil
}
