package csv

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expenseFragment() *domain.TableFragment {
	return &domain.TableFragment{
		Name:       "expense",
		Object:     "expense",
		Kind:       domain.FragmentMain,
		Columns:    []string{"expenseId", "amount", "note"},
		PrimaryKey: []string{"expenseId"},
		LoadMode:   domain.LoadModeIncrementalAppend,
		Rows: []domain.Row{
			{"expenseId": "E1", "amount": json.Number("12.50"), "note": "taxi, airport"},
			{"expenseId": "E2", "amount": json.Number("3"), "note": nil},
		},
	}
}

func TestEncode(t *testing.T) {
	data, err := Encode(expenseFragment(), true)
	require.NoError(t, err)
	assert.Equal(t, "expenseId,amount,note\nE1,12.50,\"taxi, airport\"\nE2,3,\n", string(data))

	data, err = Encode(expenseFragment(), false)
	require.NoError(t, err)
	assert.Equal(t, "E1,12.50,\"taxi, airport\"\nE2,3,\n", string(data))
}

func TestNewManifest(t *testing.T) {
	m := NewManifest(expenseFragment(), DefaultBucket)
	assert.Equal(t, "out.c-fidoo.expense", m.Destination)
	assert.True(t, m.Incremental)
	assert.Equal(t, []string{"expenseId"}, m.PrimaryKey)
	assert.Equal(t, []string{"expenseId", "amount", "note"}, m.Columns)

	full := &domain.TableFragment{Name: "vehicle", LoadMode: domain.LoadModeFullReplace}
	m = NewManifest(full, "")
	assert.Equal(t, "vehicle", m.Destination)
	assert.False(t, m.Incremental)
	assert.NotNil(t, m.PrimaryKey)
}

func TestSink_Write(t *testing.T) {
	dir := t.TempDir()
	s := NewSink(dir, DefaultBucket)

	require.NoError(t, s.Write(context.Background(), expenseFragment()))

	data, err := os.ReadFile(filepath.Join(dir, "expense.csv"))
	require.NoError(t, err)
	assert.Equal(t, "E1,12.50,\"taxi, airport\"\nE2,3,\n", string(data))

	raw, err := os.ReadFile(filepath.Join(dir, "expense.csv.manifest"))
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "out.c-fidoo.expense", m.Destination)
	assert.Equal(t, Delimiter, m.Delimiter)
	assert.Equal(t, Enclosure, m.Enclosure)
}

func TestSink_WriteEmptyFragment(t *testing.T) {
	dir := t.TempDir()
	s := NewSink(dir, DefaultBucket)

	f := &domain.TableFragment{Name: "expense", LoadMode: domain.LoadModeIncrementalAppend}
	require.NoError(t, s.Write(context.Background(), f))

	data, err := os.ReadFile(filepath.Join(dir, "expense.csv"))
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.FileExists(t, filepath.Join(dir, "expense.csv.manifest"))
}
