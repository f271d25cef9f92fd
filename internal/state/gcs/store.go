// Package gcs keeps the state document in a Cloud Storage object.
package gcs

import (
	"context"
	"errors"
	"fmt"

	storagesvc "github.com/dvloznov/fidoo-extractor/internal/gcs"
	"github.com/dvloznov/fidoo-extractor/internal/state"
)

// DefaultObject is the object name used when none is configured.
const DefaultObject = "fidoo-extractor/state.json"

// Backend reads and writes gs://Bucket/Object.
type Backend struct {
	Storage storagesvc.StorageService
	Bucket  string
	Object  string
}

// NewStore returns a state store backed by a GCS object.
func NewStore(storage storagesvc.StorageService, bucket, object string) *state.DocumentStore {
	if object == "" {
		object = DefaultObject
	}
	return state.NewDocumentStore(&Backend{Storage: storage, Bucket: bucket, Object: object})
}

func (b *Backend) Load(ctx context.Context) ([]byte, error) {
	data, err := b.Storage.ReadObject(ctx, b.Bucket, b.Object)
	if errors.Is(err, storagesvc.ErrObjectNotFound) {
		return nil, nil
	}
	return data, err
}

func (b *Backend) Save(ctx context.Context, data []byte) error {
	return b.Storage.WriteObject(ctx, b.Bucket, b.Object, data, "application/json")
}

func (b *Backend) Location() string {
	return fmt.Sprintf("gs://%s/%s", b.Bucket, b.Object)
}
