// Package file keeps the state document in a local JSON file.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dvloznov/fidoo-extractor/internal/state"
)

// DefaultPath is where the state document lives unless configured.
const DefaultPath = "data/state.json"

// Backend reads and writes the document at Path.
type Backend struct {
	Path string
}

// NewStore returns a state store backed by the file at path.
func NewStore(path string) *state.DocumentStore {
	if path == "" {
		path = DefaultPath
	}
	return state.NewDocumentStore(&Backend{Path: path})
}

func (b *Backend) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file %q: %w", b.Path, err)
	}
	return data, nil
}

// Save writes to a temporary file and renames it over the old one, so a
// crash mid-write never leaves a truncated document.
func (b *Backend) Save(ctx context.Context, data []byte) error {
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.Path); err != nil {
		return fmt.Errorf("replace state file %q: %w", b.Path, err)
	}
	return nil
}

func (b *Backend) Location() string {
	return b.Path
}
