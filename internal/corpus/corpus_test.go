package corpus

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levi/internal/vectorindex"
)

// lenEmbedder maps a text to [len(text), 1].
type lenEmbedder struct {
	calls  int
	failOn int
}

func (e *lenEmbedder) Name() string { return "len" }
func (e *lenEmbedder) Prepare([]string) error { return nil }
func (e *lenEmbedder) Dimension() int { return 2 }
func (e *lenEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.calls == e.failOn {
		return nil, errors.New("quota exceeded")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestReadDataset_FieldFallback(t *testing.T) {
	in := strings.Join([]string{
		`{"id":"a","output":"answer text","input":"question"}`,
		`{"input":"  only input  "}`,
		``,
		`{"id":7,"text":"plain text"}`,
		`{"output":"","input":"","text":"   "}`,
		`{"output":"last"}`,
	}, "\n")
	items, err := ReadDataset(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []Item{
		{ID: "a", Text: "answer text"},
		{ID: "record_1", Text: "only input"},
		{ID: "7", Text: "plain text"},
		{ID: "record_4", Text: "last"},
	}, items)

	_, err = ReadDataset(strings.NewReader("{not json"))
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestJob_RunBatchesAndSkipsDone(t *testing.T) {
	items := []Item{{"a", "x"}, {"b", "yy"}, {"c", "zzz"}, {"d", "wwww"}, {"e", "v"}}
	e := &lenEmbedder{}
	var out bytes.Buffer
	stats, err := Job{Embedder: e, BatchSize: 2}.Run(context.Background(), items, map[string]bool{"b": true}, &out)
	require.NoError(t, err)
	assert.Equal(t, JobStats{Total: 5, Skipped: 1, Embedded: 4}, stats)
	assert.Equal(t, 2, e.calls)

	recs, err := ReadRecords(&out)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "c", recs[1].ID)
	assert.Equal(t, []float32{3, 1}, recs[1].Embedding)
}

func TestJob_FailedBatchIsSkipped(t *testing.T) {
	items := []Item{{"a", "x"}, {"b", "yy"}, {"c", "zzz"}}
	var out bytes.Buffer
	stats, err := Job{Embedder: &lenEmbedder{failOn: 1}, BatchSize: 2}.Run(context.Background(), items, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, JobStats{Total: 3, Embedded: 1, Failed: 2}, stats)

	recs, err := ReadRecords(&out)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "c", recs[0].ID)
}

func TestEmbedDataset_Resume(t *testing.T) {
	dir := t.TempDir()
	dataset := filepath.Join(dir, "merged_dataset.jsonl")
	output := filepath.Join(dir, "embeddings.jsonl")
	require.NoError(t, os.WriteFile(dataset, []byte(
		`{"id":"a","output":"one"}`+"\n"+`{"id":"b","output":"two"}`+"\n"+`{"id":"c","output":"three"}`+"\n"), 0o644))
	// A completed record followed by a torn one.
	require.NoError(t, os.WriteFile(output, []byte(
		`{"id":"a","text":"one","embedding":[3,1]}`+"\n"+`{"id":"b","text":"tw`), 0o644))

	stats, err := EmbedDataset(context.Background(), &lenEmbedder{}, 50, dataset, output)
	require.NoError(t, err)
	assert.Equal(t, JobStats{Total: 3, Skipped: 1, Embedded: 2}, stats)

	recs, err := JSONLSource{Path: output}.Records(context.Background())
	require.NoError(t, err)
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

// fitRecorder records the texts it was prepared over.
type fitRecorder struct {
	lenEmbedder
	prepared []string
}

func (e *fitRecorder) Prepare(texts []string) error {
	e.prepared = append([]string(nil), texts...)
	return nil
}

func TestEmbedDataset_PreparesOverIndexedTexts(t *testing.T) {
	dir := t.TempDir()
	dataset := filepath.Join(dir, "merged_dataset.jsonl")
	output := filepath.Join(dir, "embeddings.jsonl")
	require.NoError(t, os.WriteFile(dataset, []byte(
		`{"id":"a","output":"one"}`+"\n"+`{"id":"a","output":"uno"}`+"\n"+`{"id":"b","output":"two"}`+"\n"), 0o644))

	e := &fitRecorder{}
	stats, err := EmbedDataset(context.Background(), e, 50, dataset, output)
	require.NoError(t, err)
	assert.Equal(t, JobStats{Total: 2, Embedded: 2}, stats)

	recs, err := JSONLSource{Path: output}.Records(context.Background())
	require.NoError(t, err)
	texts := make([]string, len(recs))
	for i, r := range recs {
		texts[i] = r.Text
	}
	assert.Equal(t, []string{"one", "two"}, texts)
	assert.Equal(t, texts, e.prepared)
}

func TestBuildIndex_DeduplicatesIDs(t *testing.T) {
	src := JSONLSource{Path: filepath.Join(t.TempDir(), "embeddings.jsonl")}
	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, []Record{
		{ID: "a", Text: "first", Embedding: []float32{1, 0}},
		{ID: "b", Text: "second", Embedding: []float32{0, 1}},
		{ID: "a", Text: "again", Embedding: []float32{1, 1}},
	}))
	require.NoError(t, os.WriteFile(src.Path, buf.Bytes(), 0o644))

	idx, err := BuildIndex(context.Background(), src, vectorindex.Cosine)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
	text, err := idx.Text(0)
	require.NoError(t, err)
	assert.Equal(t, "first", text)
}

func TestEntries_Empty(t *testing.T) {
	_, err := Entries(nil)
	require.ErrorIs(t, err, ErrNoRecords)
}

func TestReadRecords_MissingEmbedding(t *testing.T) {
	_, err := ReadRecords(strings.NewReader(`{"id":"a","text":"x"}`))
	require.ErrorIs(t, err, ErrInvalidRecord)
}
