package gcsuploader

import (
	"context"
	"fmt"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/dvloznov/fidoo-extractor/internal/gcs"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/dvloznov/fidoo-extractor/internal/metrics"
	csvsink "github.com/dvloznov/fidoo-extractor/internal/sink/csv"
)

// FragmentSink uploads each fragment as a Keboola CSV plus manifest to
// gs://{Bucket}/{Prefix}/{table}.csv.
type FragmentSink struct {
	Storage       StorageService
	Bucket        string
	Prefix        string
	KeboolaBucket string
	Header        bool
}

// NewFragmentSink returns a sink writing under bucket/prefix.
func NewFragmentSink(storage StorageService, bucket, prefix, keboolaBucket string) *FragmentSink {
	return &FragmentSink{
		Storage:       storage,
		Bucket:        bucket,
		Prefix:        prefix,
		KeboolaBucket: keboolaBucket,
	}
}

func (s *FragmentSink) Write(ctx context.Context, f *domain.TableFragment) error {
	data, err := csvsink.Encode(f, s.Header)
	if err != nil {
		return fmt.Errorf("FragmentSink.Write: encoding %s: %w", f.Name, err)
	}
	manifest, err := csvsink.EncodeManifest(f, s.KeboolaBucket)
	if err != nil {
		return fmt.Errorf("FragmentSink.Write: %w", err)
	}

	csvObject := gcs.ObjectName(s.Prefix, csvsink.FileName(f.Name))
	if err := s.Storage.WriteObject(ctx, s.Bucket, csvObject, data, "text/csv"); err != nil {
		return fmt.Errorf("FragmentSink.Write: uploading %s: %w", csvObject, err)
	}
	manifestObject := gcs.ObjectName(s.Prefix, csvsink.ManifestName(f.Name))
	if err := s.Storage.WriteObject(ctx, s.Bucket, manifestObject, manifest, "application/json"); err != nil {
		return fmt.Errorf("FragmentSink.Write: uploading %s: %w", manifestObject, err)
	}

	metrics.RowsWrittenTotal.WithLabelValues("gcs", f.Name).Add(float64(len(f.Rows)))
	log := logger.FromContext(ctx)
	log.Debug().
		Str("table", f.Name).
		Str("object", fmt.Sprintf("gs://%s/%s", s.Bucket, csvObject)).
		Int("rows", len(f.Rows)).
		Msg("Uploaded table")
	return nil
}
