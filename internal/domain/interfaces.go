package domain

import "context"

// Chunk is a word window of a document used as the unit of embedding and retrieval.
// Start and End delimit the window in the document's word sequence as [Start, End).
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"word_start"`
	End   int    `json:"word_end"`
}

// NeighborResult is a corpus entry returned by a similarity search.
type NeighborResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// RuleChecklist maps a structural rule name to whether the document satisfies it.
type RuleChecklist map[string]bool

// ChunkReport carries the corpus neighbours found for one document chunk.
type ChunkReport struct {
	ChunkIndex   int              `json:"chunk_index"`
	ChunkPreview string           `json:"chunk_preview"`
	SimilarCases []NeighborResult `json:"similar_cases"`
}

// VerifierReport is the result of verifying one document.
type VerifierReport struct {
	SufficiencyScore float64       `json:"sufficiency_score"`
	RuleChecklist    RuleChecklist `json:"rule_checklist"`
	Chunks           []ChunkReport `json:"chunks"`
}

// Embedder converts free text into numeric vectors, one per input and in input order.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits document text into ordered chunks.
type Chunker interface {
	Chunk(text string) ([]Chunk, error)
}
