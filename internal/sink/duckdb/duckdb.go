// Package duckdb loads table fragments into a local DuckDB database file,
// giving a queryable copy of the extracted tables.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/dvloznov/fidoo-extractor/internal/metrics"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DefaultPath is the database file used unless configured.
const DefaultPath = "data/fidoo.duckdb"

// Sink writes every fragment into a table of the same name. All columns
// are VARCHAR, matching the CSV output.
type Sink struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. An empty path opens an
// in-memory database.
func Open(path string) (*Sink, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for DuckDB %q: %w", path, err)
		}
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to DuckDB %q: %w", path, err)
	}
	return &Sink{db: db}, nil
}

// Close closes the database.
func (s *Sink) Close() error {
	return s.db.Close()
}

// Write replaces the table for full-replace fragments. Incremental
// fragments are upserted: rows whose key already exists are replaced.
func (s *Sink) Write(ctx context.Context, f *domain.TableFragment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("duckdb: begin transaction: %w", err)
	}
	defer tx.Rollback()

	table := quoteIdent(f.Name)
	if f.LoadMode != domain.LoadModeIncrementalAppend {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("duckdb: dropping %s: %w", f.Name, err)
		}
	}
	if len(f.Columns) == 0 {
		return tx.Commit()
	}

	if err := ensureTable(ctx, tx, f); err != nil {
		return err
	}

	if f.LoadMode == domain.LoadModeIncrementalAppend && len(f.PrimaryKey) > 0 {
		if err := deleteExisting(ctx, tx, f); err != nil {
			return err
		}
	}

	if err := insertRows(ctx, tx, f); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("duckdb: commit %s: %w", f.Name, err)
	}

	metrics.RowsWrittenTotal.WithLabelValues("duckdb", f.Name).Add(float64(len(f.Rows)))
	log := logger.FromContext(ctx)
	log.Debug().
		Str("table", f.Name).
		Int("rows", len(f.Rows)).
		Str("load_mode", string(f.LoadMode)).
		Msg("Loaded table into DuckDB")
	return nil
}

func ensureTable(ctx context.Context, tx *sql.Tx, f *domain.TableFragment) error {
	table := quoteIdent(f.Name)
	defs := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		defs[i] = quoteIdent(c) + " VARCHAR"
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("duckdb: creating %s: %w", f.Name, err)
	}

	// Later incremental fragments may carry columns the table has not seen.
	for _, c := range f.Columns {
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s VARCHAR", table, quoteIdent(c))
		if _, err := tx.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("duckdb: adding column %s to %s: %w", c, f.Name, err)
		}
	}
	return nil
}

func deleteExisting(ctx context.Context, tx *sql.Tx, f *domain.TableFragment) error {
	conds := make([]string, len(f.PrimaryKey))
	for i, k := range f.PrimaryKey {
		conds[i] = quoteIdent(k) + " = ?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(f.Name), strings.Join(conds, " AND ")))
	if err != nil {
		return fmt.Errorf("duckdb: preparing delete on %s: %w", f.Name, err)
	}
	defer stmt.Close()

	args := make([]any, len(f.PrimaryKey))
	for _, row := range f.Rows {
		for i, k := range f.PrimaryKey {
			args[i] = cell(row[k])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("duckdb: deleting replaced rows from %s: %w", f.Name, err)
		}
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, f *domain.TableFragment) error {
	cols := make([]string, len(f.Columns))
	marks := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		cols[i] = quoteIdent(c)
		marks[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(f.Name), strings.Join(cols, ", "), strings.Join(marks, ", "))

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("duckdb: preparing insert into %s: %w", f.Name, err)
	}
	defer stmt.Close()

	args := make([]any, len(f.Columns))
	for n, row := range f.Rows {
		for i, c := range f.Columns {
			args[i] = cell(row[c])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("duckdb: inserting row %d into %s: %w", n, f.Name, err)
		}
	}
	return nil
}

// cell maps a row value to a VARCHAR argument; nil stays NULL.
func cell(v any) any {
	s, ok := domain.FormatValue(v)
	if !ok {
		return nil
	}
	return s
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
