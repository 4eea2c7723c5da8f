// Package verifier fuses the structural rule checklist with corpus retrieval
// into a per-document report.
package verifier

import (
	"context"

	"golang.org/x/sync/errgroup"

	"levi/internal/domain"
	"levi/internal/logger"
	"levi/internal/rules"
	"levi/internal/vectorindex"
)

const (
	DefaultTopK         = 3
	DefaultWorkers      = 4
	DefaultPreviewRunes = 100
	DefaultSnippetRunes = 300
)

// Verifier builds VerifierReports. It is safe for concurrent use.
type Verifier struct {
	engine       *rules.Engine
	workers      int
	previewRunes int
	snippetRunes int
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithRules replaces the default rule set. The sufficiency score follows the
// size of the replacement.
func WithRules(engine *rules.Engine) Option { return func(v *Verifier) { v.engine = engine } }

// WithWorkers bounds the number of chunks searched in parallel.
func WithWorkers(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.workers = n
		}
	}
}

// WithPreviewRunes sets how many runes of a chunk appear in chunk_preview.
func WithPreviewRunes(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.previewRunes = n
		}
	}
}

// WithSnippetRunes sets how many runes of a corpus text a similar case carries.
func WithSnippetRunes(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.snippetRunes = n
		}
	}
}

// New returns a Verifier with the default rules, DefaultWorkers workers and
// the default preview and snippet lengths.
func New(opts ...Option) *Verifier {
	v := &Verifier{
		engine:       rules.NewEngine(),
		workers:      DefaultWorkers,
		previewRunes: DefaultPreviewRunes,
		snippetRunes: DefaultSnippetRunes,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify evaluates the rules over text once, then for the chunk at position i
// takes vector i of chunkIndex and looks up its topK nearest corpus entries.
// A chunk whose lookup fails gets no similar cases; the rest of the report is
// unaffected. A nil chunkIndex or corpus yields a rules-only report. Chunks
// appear in the report in input order. The only error returned is the
// context's.
func (v *Verifier) Verify(ctx context.Context, text string, chunks []domain.Chunk, chunkIndex vectorindex.Searcher, corpus vectorindex.Corpus, topK int) (domain.VerifierReport, error) {
	checklist := v.engine.Evaluate(text)
	report := domain.VerifierReport{
		SufficiencyScore: rules.Score(checklist),
		RuleChecklist:    checklist,
		Chunks:           make([]domain.ChunkReport, len(chunks)),
	}
	for i, ch := range chunks {
		report.Chunks[i] = domain.ChunkReport{
			ChunkIndex:   ch.Index,
			ChunkPreview: Truncate(ch.Text, v.previewRunes),
			SimilarCases: []domain.NeighborResult{},
		}
	}
	if chunkIndex == nil || corpus == nil || len(chunks) == 0 {
		return report, ctx.Err()
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			cases, err := v.similarCases(chunkIndex, corpus, i, topK)
			if err != nil {
				logger.Debug("verifier: chunk %d: %v", chunks[i].Index, err)
				return nil
			}
			report.Chunks[i].SimilarCases = cases
			return nil
		})
	}
	_ = g.Wait()
	return report, ctx.Err()
}

func (v *Verifier) similarCases(chunkIndex vectorindex.Searcher, corpus vectorindex.Corpus, position, topK int) ([]domain.NeighborResult, error) {
	vec, err := chunkIndex.Reconstruct(position)
	if err != nil {
		return nil, err
	}
	neighbors, err := vectorindex.Neighbors(corpus, vec, topK)
	if err != nil {
		return nil, err
	}
	for i := range neighbors {
		neighbors[i].Text = Truncate(neighbors[i].Text, v.snippetRunes)
	}
	return neighbors, nil
}

// Truncate returns the first n runes of s followed by "..." when s is longer.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
