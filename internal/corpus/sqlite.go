package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite"

	"levi/internal/vectorindex"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSource reads records from a docs-style table:
//
//	id TEXT PRIMARY KEY, content TEXT, meta TEXT, embedding BLOB
//
// Embeddings are little-endian float32 blobs.
type SQLiteSource struct {
	DB    *sql.DB
	Table string
}

// OpenSQLite opens the database file at path with the pure-Go sqlite driver.
func OpenSQLite(path, table string) (*SQLiteSource, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("corpus: invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open sqlite: %w", err)
	}
	return &SQLiteSource{DB: db, Table: table}, nil
}

func (s *SQLiteSource) Close() error { return s.DB.Close() }

// EnsureSchema creates the table when it does not exist.
func (s *SQLiteSource) EnsureSchema(ctx context.Context) error {
	if !identPattern.MatchString(s.Table) {
		return fmt.Errorf("corpus: invalid table name %q", s.Table)
	}
	_, err := s.DB.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    content TEXT,
    meta TEXT,
    embedding BLOB
)`, s.Table))
	return err
}

// Write upserts records in a single transaction.
func (s *SQLiteSource) Write(ctx context.Context, records []Record) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("corpus: ensure schema: %w", err)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (id, content, meta, embedding) VALUES (?, ?, '{}', ?)", s.Table))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Text, vectorindex.EncodeVector(rec.Embedding)); err != nil {
			return fmt.Errorf("corpus: insert %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// Records returns rows with a non-null embedding ordered by rowid.
func (s *SQLiteSource) Records(ctx context.Context) ([]Record, error) {
	if !identPattern.MatchString(s.Table) {
		return nil, fmt.Errorf("corpus: invalid table name %q", s.Table)
	}
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, COALESCE(content, ''), embedding FROM %s WHERE embedding IS NOT NULL ORDER BY rowid", s.Table))
	if err != nil {
		return nil, fmt.Errorf("corpus: query %s: %w", s.Table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec  Record
			blob []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &blob); err != nil {
			return nil, fmt.Errorf("corpus: scan row: %w", err)
		}
		vec, err := vectorindex.DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("%w: row %s: %v", ErrInvalidRecord, rec.ID, err)
		}
		rec.Embedding = vec
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("corpus: iterate rows: %w", err)
	}
	return out, nil
}
