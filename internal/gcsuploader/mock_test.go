package gcsuploader

import (
	"context"
	"sync"

	"github.com/dvloznov/fidoo-extractor/internal/gcs"
)

// MockStorageService is a map-backed StorageService for testing.
type MockStorageService struct {
	WriteObjectFunc func(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error

	mu           sync.Mutex
	Objects      map[string][]byte
	ContentTypes map[string]string
}

func (m *MockStorageService) WriteObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error {
	if m.WriteObjectFunc != nil {
		if err := m.WriteObjectFunc(ctx, bucketName, objectName, data, contentType); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Objects == nil {
		m.Objects = make(map[string][]byte)
		m.ContentTypes = make(map[string]string)
	}
	key := bucketName + "/" + objectName
	m.Objects[key] = append([]byte(nil), data...)
	m.ContentTypes[key] = contentType
	return nil
}

func (m *MockStorageService) ReadObject(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Objects[bucketName+"/"+objectName]
	if !ok {
		return nil, gcs.ErrObjectNotFound
	}
	return data, nil
}
