package verifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levi/internal/domain"
	"levi/internal/rules"
	"levi/internal/vectorindex"
)

const contract = `This Agreement is made on 12/03/2021 by and between Acme Ltd and Beta LLC.
It shall be governed by the laws of England. Signed by the authorised signatory.`

func buildIndex(t *testing.T, entries ...vectorindex.Entry) *vectorindex.Flat {
	t.Helper()
	idx, err := vectorindex.Build(entries, vectorindex.Cosine)
	require.NoError(t, err)
	return idx
}

func testCorpus(t *testing.T) *vectorindex.Flat {
	return buildIndex(t,
		vectorindex.Entry{ID: "case-x", Text: "governing law clause " + strings.Repeat("x", 400), Vector: []float32{1, 0, 0}},
		vectorindex.Entry{ID: "case-y", Text: "signature block", Vector: []float32{0, 1, 0}},
		vectorindex.Entry{ID: "case-z", Text: "arbitration", Vector: []float32{0, 0, 1}},
	)
}

func chunksOf(texts ...string) []domain.Chunk {
	out := make([]domain.Chunk, len(texts))
	for i, s := range texts {
		out[i] = domain.Chunk{Index: i, Text: s}
	}
	return out
}

func TestVerify_EndToEnd(t *testing.T) {
	chunkIndex := buildIndex(t,
		vectorindex.Entry{ID: "0", Vector: []float32{1, 0.1, 0}},
		vectorindex.Entry{ID: "1", Vector: []float32{0, 1, 0.2}},
	)
	chunks := chunksOf(strings.Repeat("a", 150), "short chunk")

	report, err := New(WithWorkers(2)).Verify(context.Background(), contract, chunks, chunkIndex, testCorpus(t), 2)
	require.NoError(t, err)

	assert.Equal(t, 100.0, report.SufficiencyScore)
	assert.Equal(t, domain.RuleChecklist{
		rules.Signatures: true, rules.Dates: true, rules.Parties: true, rules.Jurisdiction: true,
	}, report.RuleChecklist)

	require.Len(t, report.Chunks, 2)
	first := report.Chunks[0]
	assert.Equal(t, 0, first.ChunkIndex)
	assert.Equal(t, strings.Repeat("a", 100)+"...", first.ChunkPreview)
	require.Len(t, first.SimilarCases, 2)
	assert.Equal(t, "case-x", first.SimilarCases[0].ID)
	assert.Equal(t, "case-y", first.SimilarCases[1].ID)
	assert.Greater(t, first.SimilarCases[0].Score, first.SimilarCases[1].Score)
	assert.Equal(t, 303, len([]rune(first.SimilarCases[0].Text)))
	assert.True(t, strings.HasSuffix(first.SimilarCases[0].Text, "..."))

	second := report.Chunks[1]
	assert.Equal(t, 1, second.ChunkIndex)
	assert.Equal(t, "short chunk", second.ChunkPreview)
	assert.Equal(t, "case-y", second.SimilarCases[0].ID)
	assert.Equal(t, "signature block", second.SimilarCases[0].Text)
}

func TestVerify_EmptyDocument(t *testing.T) {
	report, err := New().Verify(context.Background(), "", nil, nil, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.SufficiencyScore)
	assert.Len(t, report.RuleChecklist, 4)
	for name, ok := range report.RuleChecklist {
		assert.False(t, ok, name)
	}
	require.NotNil(t, report.Chunks)
	assert.Empty(t, report.Chunks)
}

func TestVerify_RulesOnlyWithoutIndexes(t *testing.T) {
	report, err := New().Verify(context.Background(), contract, chunksOf("one", "two"), nil, testCorpus(t), 3)
	require.NoError(t, err)
	assert.Equal(t, 100.0, report.SufficiencyScore)
	require.Len(t, report.Chunks, 2)
	for _, c := range report.Chunks {
		require.NotNil(t, c.SimilarCases)
		assert.Empty(t, c.SimilarCases)
	}
}

// flakySearcher fails to reconstruct selected positions.
type flakySearcher struct {
	*vectorindex.Flat
	fail map[int]bool
}

func (f flakySearcher) Reconstruct(position int) ([]float32, error) {
	if f.fail[position] {
		return nil, errors.New("reconstruct failed")
	}
	return f.Flat.Reconstruct(position)
}

func TestVerify_ChunkFailureIsIsolated(t *testing.T) {
	chunkIndex := flakySearcher{
		Flat: buildIndex(t,
			vectorindex.Entry{ID: "0", Vector: []float32{1, 0, 0}},
			vectorindex.Entry{ID: "1", Vector: []float32{0, 1, 0}},
			vectorindex.Entry{ID: "2", Vector: []float32{0, 0, 1}},
		),
		fail: map[int]bool{1: true},
	}
	report, err := New().Verify(context.Background(), contract, chunksOf("a", "b", "c"), chunkIndex, testCorpus(t), 1)
	require.NoError(t, err)
	require.Len(t, report.Chunks, 3)
	assert.Equal(t, "case-x", report.Chunks[0].SimilarCases[0].ID)
	assert.Empty(t, report.Chunks[1].SimilarCases)
	assert.Equal(t, "case-z", report.Chunks[2].SimilarCases[0].ID)
}

func TestVerify_MissingChunkVectorsAndDimensionMismatch(t *testing.T) {
	chunkIndex := buildIndex(t, vectorindex.Entry{ID: "0", Vector: []float32{1, 0}})
	report, err := New().Verify(context.Background(), contract, chunksOf("a", "b"), chunkIndex, testCorpus(t), 3)
	require.NoError(t, err)
	require.Len(t, report.Chunks, 2)
	assert.Empty(t, report.Chunks[0].SimilarCases, "2-d chunk vector against a 3-d corpus")
	assert.Empty(t, report.Chunks[1].SimilarCases, "no vector at position 1")
}

func TestVerify_PreservesOrderUnderParallelism(t *testing.T) {
	const n = 40
	entries := make([]vectorindex.Entry, n)
	texts := make([]string, n)
	for i := range entries {
		entries[i] = vectorindex.Entry{ID: string(rune('A' + i)), Vector: []float32{float32(i%3 + 1), float32(i%2 + 1), 1}}
		texts[i] = string(rune('A' + i))
	}
	report, err := New(WithWorkers(8)).Verify(context.Background(), "", chunksOf(texts...), buildIndex(t, entries...), testCorpus(t), 3)
	require.NoError(t, err)
	require.Len(t, report.Chunks, n)
	for i, c := range report.Chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, texts[i], c.ChunkPreview)
		assert.Len(t, c.SimilarCases, 3)
	}
}

func TestVerify_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Verify(ctx, contract, chunksOf("a"), testCorpus(t), testCorpus(t), 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestVerify_CustomRules(t *testing.T) {
	signatures, ok := rules.Lookup(rules.Signatures)
	require.True(t, ok)
	v := New(WithRules(rules.NewEngine(signatures)))

	report, err := v.Verify(context.Background(), "Signed by the tenant.", nil, nil, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.RuleChecklist{rules.Signatures: true}, report.RuleChecklist)
	assert.Equal(t, 100.0, report.SufficiencyScore)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab...", Truncate("abc", 2))
	assert.Equal(t, "żó...", Truncate("żółw", 2))
	assert.Equal(t, "", Truncate("", 5))
}
