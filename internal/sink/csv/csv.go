// Package csv writes table fragments in the Keboola output layout: one
// {table}.csv per table with a {table}.csv.manifest describing it.
package csv

import (
	"bytes"
	"context"
	encsv "encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/dvloznov/fidoo-extractor/internal/metrics"
)

const (
	// DefaultDir is the Keboola output tables directory.
	DefaultDir = "data/out/tables"
	// DefaultBucket is the Keboola Storage bucket tables are loaded into.
	DefaultBucket = "out.c-fidoo"

	Delimiter = ","
	Enclosure = `"`
)

// Manifest is the Keboola table manifest.
type Manifest struct {
	Destination string   `json:"destination"`
	PrimaryKey  []string `json:"primary_key"`
	Incremental bool     `json:"incremental"`
	Columns     []string `json:"columns"`
	Delimiter   string   `json:"delimiter"`
	Enclosure   string   `json:"enclosure"`
}

// FileName is the CSV file name for table.
func FileName(table string) string {
	return table + ".csv"
}

// ManifestName is the manifest file name for table.
func ManifestName(table string) string {
	return FileName(table) + ".manifest"
}

// NewManifest describes f for loading into bucket. Incremental fragments
// are upserted on their primary key; full-replace fragments overwrite.
func NewManifest(f *domain.TableFragment, bucket string) Manifest {
	dest := f.Name
	if bucket != "" {
		dest = bucket + "." + f.Name
	}
	pk := f.PrimaryKey
	if pk == nil {
		pk = []string{}
	}
	return Manifest{
		Destination: dest,
		PrimaryKey:  pk,
		Incremental: f.LoadMode == domain.LoadModeIncrementalAppend,
		Columns:     f.Columns,
		Delimiter:   Delimiter,
		Enclosure:   Enclosure,
	}
}

// EncodeManifest renders the manifest JSON for f.
func EncodeManifest(f *domain.TableFragment, bucket string) ([]byte, error) {
	data, err := json.MarshalIndent(NewManifest(f, bucket), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("EncodeManifest: marshaling manifest for %s: %w", f.Name, err)
	}
	return data, nil
}

// WriteRows writes the rows of f in column order. With header set the
// column names are written first; Keboola reads them from the manifest.
func WriteRows(w io.Writer, f *domain.TableFragment, header bool) error {
	cw := encsv.NewWriter(w)
	if header {
		if err := cw.Write(f.Columns); err != nil {
			return fmt.Errorf("WriteRows: writing header: %w", err)
		}
	}

	record := make([]string, len(f.Columns))
	for i, row := range f.Rows {
		for j, col := range f.Columns {
			record[j], _ = domain.FormatValue(row[col])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("WriteRows: writing row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Encode returns the CSV bytes of f.
func Encode(f *domain.TableFragment, header bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteRows(&buf, f, header); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sink writes fragments into Dir.
type Sink struct {
	Dir    string
	Bucket string
	Header bool
}

// NewSink returns a Sink writing headerless Keboola CSVs.
func NewSink(dir, bucket string) *Sink {
	if dir == "" {
		dir = DefaultDir
	}
	return &Sink{Dir: dir, Bucket: bucket}
}

// Write replaces {table}.csv and its manifest.
func (s *Sink) Write(ctx context.Context, f *domain.TableFragment) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %q: %w", s.Dir, err)
	}

	csvPath := filepath.Join(s.Dir, FileName(f.Name))
	if err := writeFile(csvPath, func(w io.Writer) error { return WriteRows(w, f, s.Header) }); err != nil {
		return err
	}

	manifest, err := EncodeManifest(f, s.Bucket)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.Dir, ManifestName(f.Name)), manifest, 0o644); err != nil {
		return fmt.Errorf("write manifest for %s: %w", f.Name, err)
	}

	metrics.RowsWrittenTotal.WithLabelValues("csv", f.Name).Add(float64(len(f.Rows)))
	log := logger.FromContext(ctx)
	log.Debug().
		Str("table", f.Name).
		Str("path", csvPath).
		Int("rows", len(f.Rows)).
		Msg("Wrote table")
	return nil
}

func writeFile(path string, fn func(w io.Writer) error) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	if err := fn(out); err != nil {
		out.Close()
		return fmt.Errorf("write %q: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %q: %w", path, err)
	}
	return nil
}
