package gcsuploader

import (
	"context"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/fidoo-extractor/internal/gcs"
)

// Re-export interface from shared package for backward compatibility
type StorageService = gcs.StorageService

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage.
type GCSStorageService struct {
	client *storage.Client
}

// NewGCSStorageService creates a storage client using Application Default
// Credentials (gcloud auth application-default login).
func NewGCSStorageService(ctx context.Context) (*GCSStorageService, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSStorageService{client: client}, nil
}

// WriteObject delegates to UploadBytes.
func (s *GCSStorageService) WriteObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error {
	return UploadBytes(ctx, s.client, bucketName, objectName, data, contentType)
}

// ReadObject delegates to DownloadObject.
func (s *GCSStorageService) ReadObject(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	return DownloadObject(ctx, s.client, bucketName, objectName)
}

// Close releases the storage client.
func (s *GCSStorageService) Close() error {
	return s.client.Close()
}

var _ StorageService = (*GCSStorageService)(nil)
