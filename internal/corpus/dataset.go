package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"levi/internal/embedding"
	"levi/internal/logger"
)

// Item is one raw dataset record awaiting embedding.
type Item struct {
	ID   string
	Text string
}

// ReadDataset decodes a JSONL dataset. The text of a record is its "output"
// field, falling back to "input" and then "text". Records without text are
// skipped. A record without an "id" is named record_<line index>.
func ReadDataset(r io.Reader) ([]Item, error) {
	var out []Item
	sc := newScanner(r)
	i := -1
	for sc.Scan() {
		b := trimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		i++
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidRecord, i, err)
		}
		text := strings.TrimSpace(firstText(raw, "output", "input", "text"))
		if text == "" {
			continue
		}
		out = append(out, Item{ID: recordID(raw["id"], i), Text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("corpus: read dataset: %w", err)
	}
	return out, nil
}

func firstText(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func recordID(v any, i int) string {
	switch id := v.(type) {
	case string:
		if id != "" {
			return id
		}
	case json.Number:
		return id.String()
	}
	return fmt.Sprintf("record_%d", i)
}

// uniqueItems keeps the first item of every id, as Entries does for records.
func uniqueItems(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			logger.Warn("corpus: skipping duplicate dataset id %s", it.ID)
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}

// JobStats summarizes an embedding run.
type JobStats struct {
	Total    int
	Skipped  int
	Embedded int
	Failed   int
}

// Job embeds a dataset into an embeddings.jsonl file.
type Job struct {
	Embedder  embedding.Embedder
	BatchSize int
}

// Run embeds items in batches and appends the results to out. Items whose id
// is in done are skipped so an interrupted run can be resumed. A batch whose
// embedding fails is logged and left out; the job carries on with the next.
func (j Job) Run(ctx context.Context, items []Item, done map[string]bool, out io.Writer) (JobStats, error) {
	stats := JobStats{Total: len(items)}
	batch := j.BatchSize
	if batch <= 0 {
		batch = 50
	}
	pending := make([]Item, 0, len(items))
	for _, it := range items {
		if done[it.ID] {
			stats.Skipped++
			continue
		}
		pending = append(pending, it)
	}
	for start := 0; start < len(pending); start += batch {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := min(start+batch, len(pending))
		group := pending[start:end]
		texts := make([]string, len(group))
		for i, it := range group {
			texts[i] = it.Text
		}
		vecs, err := embedding.EmbedAll(ctx, j.Embedder, texts, len(texts))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			logger.Error("corpus: batch %d failed: %v", start/batch, err)
			stats.Failed += len(group)
			continue
		}
		records := make([]Record, len(group))
		for i, it := range group {
			records[i] = Record{ID: it.ID, Text: it.Text, Embedding: vecs[i]}
		}
		if err := WriteRecords(out, records); err != nil {
			return stats, err
		}
		stats.Embedded += len(group)
		logger.Debug("corpus: embedded batch %d (%d records)", start/batch, len(group))
	}
	return stats, nil
}

// EmbedDataset prepares e over the dataset at datasetPath and embeds it into
// outputPath, resuming from whatever outputPath already holds.
func EmbedDataset(ctx context.Context, e embedding.Embedder, batchSize int, datasetPath, outputPath string) (JobStats, error) {
	in, err := os.Open(datasetPath)
	if err != nil {
		return JobStats{}, fmt.Errorf("corpus: open dataset: %w", err)
	}
	items, err := ReadDataset(in)
	in.Close()
	if err != nil {
		return JobStats{}, err
	}
	items = uniqueItems(items)
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	// Corpus-fitted embedders learn their vocabulary from exactly the texts
	// that end up in the index, which is what the server refits over on load.
	// A resumed run therefore produces vectors in the same space.
	if err := e.Prepare(texts); err != nil {
		return JobStats{}, fmt.Errorf("corpus: prepare %s embedder: %w", e.Name(), err)
	}
	done, err := existingIDs(outputPath)
	if err != nil {
		return JobStats{}, err
	}
	if len(done) > 0 {
		logger.Info("corpus: resuming, %d records already embedded", len(done))
		if err := truncateTornTail(outputPath); err != nil {
			return JobStats{}, err
		}
	}
	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return JobStats{}, fmt.Errorf("corpus: open output: %w", err)
	}
	stats, runErr := Job{Embedder: e, BatchSize: batchSize}.Run(ctx, items, done, out)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("corpus: close output: %w", err)
	}
	return stats, runErr
}

func existingIDs(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("corpus: open output: %w", err)
	}
	defer f.Close()
	done := map[string]bool{}
	sc := newScanner(f)
	for sc.Scan() {
		var rec struct {
			ID string `json:"id"`
		}
		// A torn final line from an interrupted run is dropped by
		// truncateTornTail and its batch re-embedded.
		if err := json.Unmarshal(sc.Bytes(), &rec); err == nil && rec.ID != "" {
			done[rec.ID] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("corpus: scan output: %w", err)
	}
	return done, nil
}

// truncateTornTail cuts path back to its last complete line.
func truncateTornTail(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("corpus: open output: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	buf := make([]byte, 4096)
	for end := size; end > 0; {
		start := max(end-int64(len(buf)), 0)
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("corpus: scan output: %w", err)
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			cut := start + int64(i) + 1
			if cut == size {
				return nil
			}
			logger.Warn("corpus: dropping %d bytes of a partial record", size-cut)
			return f.Truncate(cut)
		}
		end = start
	}
	return f.Truncate(0)
}
