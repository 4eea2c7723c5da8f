// Package corpus reads and writes the embedded reference corpus that the
// corpus index is built from.
package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"levi/internal/logger"
	"levi/internal/vectorindex"
)

var (
	ErrNoRecords     = errors.New("corpus: no records")
	ErrInvalidRecord = errors.New("corpus: invalid record")
)

// Record is one embedded corpus entry as stored in embeddings.jsonl.
type Record struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// Source yields embedded corpus records.
type Source interface {
	Records(ctx context.Context) ([]Record, error)
}

// maxLine bounds a single JSONL line; embedding lines are long.
const maxLine = 64 * 1024 * 1024

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024*1024), maxLine)
	return sc
}

// ReadRecords decodes JSONL records. Blank lines are skipped.
func ReadRecords(r io.Reader) ([]Record, error) {
	var out []Record
	sc := newScanner(r)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(trimSpace(b)) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidRecord, line, err)
		}
		if rec.ID == "" || len(rec.Embedding) == 0 {
			return nil, fmt.Errorf("%w: line %d: missing id or embedding", ErrInvalidRecord, line)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("corpus: read records: %w", err)
	}
	return out, nil
}

// WriteRecords appends records to w, one JSON object per line.
func WriteRecords(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("corpus: write record %s: %w", rec.ID, err)
		}
	}
	return nil
}

// JSONLSource reads records from an embeddings.jsonl file.
type JSONLSource struct {
	Path string
}

func (s JSONLSource) Records(ctx context.Context) ([]Record, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open %s: %w", s.Path, err)
	}
	defer f.Close()
	return ReadRecords(f)
}

// Entries converts records into index entries. Repeated ids keep the first
// occurrence, which happens when an interrupted embedding run is resumed.
func Entries(records []Record) ([]vectorindex.Entry, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	seen := make(map[string]struct{}, len(records))
	out := make([]vectorindex.Entry, 0, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.ID]; dup {
			logger.Warn("corpus: skipping duplicate record id %s", rec.ID)
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, vectorindex.Entry{ID: rec.ID, Text: rec.Text, Vector: rec.Embedding})
	}
	return out, nil
}

// BuildIndex reads every record from src and builds an index over them.
func BuildIndex(ctx context.Context, src Source, metric vectorindex.Metric) (*vectorindex.Flat, error) {
	records, err := src.Records(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := Entries(records)
	if err != nil {
		return nil, err
	}
	return vectorindex.Build(entries, metric)
}

func trimSpace(b []byte) []byte {
	i, j := 0, len(b)
	for i < j && (b[i] == ' ' || b[i] == '\t' || b[i] == '\r' || b[i] == '\n') {
		i++
	}
	for j > i && (b[j-1] == ' ' || b[j-1] == '\t' || b[j-1] == '\r' || b[j-1] == '\n') {
		j--
	}
	return b[i:j]
}
