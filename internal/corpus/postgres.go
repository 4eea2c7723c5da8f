package corpus

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultPostgresQuery selects id, text and a pgvector column cast to text.
const DefaultPostgresQuery = `SELECT id::text, chunk_text, embedding::text FROM legal_chunks WHERE embedding IS NOT NULL ORDER BY id`

// PostgresSource reads records from a Postgres table holding pgvector
// embeddings. Query must return (id text, text text, embedding text).
type PostgresSource struct {
	Pool  *pgxpool.Pool
	Query string
}

// OpenPostgres connects a pool to dsn.
func OpenPostgres(ctx context.Context, dsn, query string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("corpus: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("corpus: ping postgres: %w", err)
	}
	if query == "" {
		query = DefaultPostgresQuery
	}
	return &PostgresSource{Pool: pool, Query: query}, nil
}

func (s *PostgresSource) Close() { s.Pool.Close() }

func (s *PostgresSource) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.Pool.Query(ctx, s.Query)
	if err != nil {
		return nil, fmt.Errorf("corpus: query postgres: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec Record
			lit string
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &lit); err != nil {
			return nil, fmt.Errorf("corpus: scan row: %w", err)
		}
		vec, err := ParseVectorLiteral(lit)
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

// ParseVectorLiteral parses pgvector's text form, e.g. "[0.1,0.2,0.3]".
func ParseVectorLiteral(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return nil, fmt.Errorf("empty vector literal")
	}
	parts := strings.Split(body, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("vector component %d: %w", i, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

// FormatVectorLiteral renders vec in pgvector's text form.
func FormatVectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', 6, 32))
	}
	b.WriteByte(']')
	return b.String()
}
