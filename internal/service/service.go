// Package service wires chunking, embedding, the corpus snapshot and the
// session store into the operations exposed by the HTTP API and the TUI.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"levi/internal/briefing"
	"levi/internal/chunker"
	"levi/internal/domain"
	"levi/internal/embedding"
	"levi/internal/logger"
	"levi/internal/session"
	"levi/internal/vectorindex"
	"levi/internal/verifier"
)

var (
	ErrEmptyDocument = errors.New("service: document is empty")
	ErrEmptyQuery    = errors.New("service: query is empty")
	ErrNoCorpus      = errors.New("service: corpus index not loaded")
	ErrNoLoader      = errors.New("service: no corpus loader configured")
)

// CorpusLoader produces a fresh corpus index, typically from storage.
type CorpusLoader func(ctx context.Context) (*vectorindex.Flat, error)

// corpusView pairs a corpus index with the embedder fitted to it. The pair is
// published as one value so queries are always embedded in the space of the
// index they search. generation grows by one with every reload.
type corpusView struct {
	index      *vectorindex.Flat
	embedder   domain.Embedder
	generation uint64
}

// DocumentService is safe for concurrent use.
type DocumentService struct {
	chunker    domain.Chunker
	embedder   domain.Embedder
	initial    *vectorindex.Flat
	corpus     *vectorindex.Snapshot[corpusView]
	loader     CorpusLoader
	sessions   *session.Store
	verifier   *verifier.Verifier
	summarizer *briefing.FrequencySummarizer
	metric     vectorindex.Metric

	batchSize      int
	verifyTopK     int
	searchTopK     int
	minSimilarity  float64
	briefSentences int
	snippetRunes   int
}

type Option func(*DocumentService)

func WithChunker(c domain.Chunker) Option { return func(s *DocumentService) { s.chunker = c } }

// WithEmbedder sets the embedder. Without one every report is rules-only.
// Corpus-fitted embedders are refitted over the corpus texts on every reload;
// e itself must already match the index passed to WithCorpus.
func WithEmbedder(e domain.Embedder) Option { return func(s *DocumentService) { s.embedder = e } }

// WithCorpus publishes idx as the initial corpus index.
func WithCorpus(idx *vectorindex.Flat) Option {
	return func(s *DocumentService) { s.initial = idx }
}

// WithCorpusLoader enables ReloadCorpus.
func WithCorpusLoader(l CorpusLoader) Option { return func(s *DocumentService) { s.loader = l } }

func WithSessions(st *session.Store) Option { return func(s *DocumentService) { s.sessions = st } }

func WithVerifier(v *verifier.Verifier) Option { return func(s *DocumentService) { s.verifier = v } }

func WithMetric(m vectorindex.Metric) Option { return func(s *DocumentService) { s.metric = m } }

func WithBatchSize(n int) Option { return func(s *DocumentService) { s.batchSize = n } }

func WithVerifyTopK(k int) Option { return func(s *DocumentService) { s.verifyTopK = k } }

// WithSearch sets the default result count of SearchCorpus and the best-hit
// similarity under which a query is reported as out of context.
func WithSearch(topK int, minSimilarity float64) Option {
	return func(s *DocumentService) {
		s.searchTopK = topK
		s.minSimilarity = minSimilarity
	}
}

func WithBriefSentences(n int) Option { return func(s *DocumentService) { s.briefSentences = n } }

func WithSnippetRunes(n int) Option { return func(s *DocumentService) { s.snippetRunes = n } }

func NewDocumentService(opts ...Option) (*DocumentService, error) {
	s := &DocumentService{
		metric:         vectorindex.Cosine,
		batchSize:      50,
		verifyTopK:     verifier.DefaultTopK,
		searchTopK:     5,
		minSimilarity:  0.1,
		briefSentences: 5,
		snippetRunes:   verifier.DefaultSnippetRunes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.chunker == nil {
		c, err := chunker.NewWordChunker(500, 50)
		if err != nil {
			return nil, err
		}
		s.chunker = c
	}
	s.corpus = vectorindex.NewSnapshot(&corpusView{index: s.initial, embedder: s.embedder, generation: 1})
	if s.sessions == nil {
		s.sessions = session.NewStore()
	}
	if s.verifier == nil {
		s.verifier = verifier.New(verifier.WithSnippetRunes(s.snippetRunes))
	}
	if s.summarizer == nil {
		s.summarizer = briefing.NewFrequencySummarizer()
	}
	return s, nil
}

// UploadResult describes a newly created session.
type UploadResult struct {
	SessionID string `json:"session_id"`
	Chunks    int    `json:"chunks"`
	WordCount int    `json:"word_count"`
	Embedded  bool   `json:"embedded"`
	Message   string `json:"message"`
}

// Upload chunks text, embeds the chunks and opens a session for it. When the
// embedder is unavailable the session is still created without vectors.
func (s *DocumentService) Upload(ctx context.Context, name, text string) (UploadResult, error) {
	if strings.TrimSpace(text) == "" {
		return UploadResult{}, ErrEmptyDocument
	}
	chunks, err := s.chunker.Chunk(text)
	if err != nil {
		return UploadResult{}, err
	}
	view := s.corpus.Load()
	idx, err := s.embedChunks(ctx, view.embedder, chunks)
	if err != nil {
		if !errors.Is(err, embedding.ErrUnavailable) {
			return UploadResult{}, err
		}
		logger.Warn("upload %q: continuing without embeddings: %v", name, err)
	}
	sess := s.sessions.Create(session.Session{
		Name:       name,
		Text:       text,
		WordCount:  len(strings.Fields(text)),
		Chunks:     chunks,
		Index:      idx,
		Generation: view.generation,
	})
	res := UploadResult{
		SessionID: sess.ID,
		Chunks:    len(chunks),
		WordCount: sess.WordCount,
		Embedded:  sess.Embedded(),
		Message:   fmt.Sprintf("Document uploaded and processed into %d chunks.", len(chunks)),
	}
	if !res.Embedded {
		res.Message += " Embeddings are unavailable; reports will contain the rule checklist only."
	}
	logger.Info("session %s: %q, %d words, %d chunks, embedded=%t", sess.ID, name, res.WordCount, res.Chunks, res.Embedded)
	return res, nil
}

func (s *DocumentService) embedChunks(ctx context.Context, e domain.Embedder, chunks []domain.Chunk) (*vectorindex.Flat, error) {
	if e == nil {
		return nil, embedding.Unavailable(errors.New("no embedder configured"))
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vecs, err := embedding.EmbedAll(ctx, e, texts, s.batchSize)
	if err != nil {
		return nil, err
	}
	entries := make([]vectorindex.Entry, len(chunks))
	for i, ch := range chunks {
		entries[i] = vectorindex.Entry{ID: strconv.Itoa(ch.Index), Text: ch.Text, Vector: vecs[i]}
	}
	return vectorindex.Build(entries, s.metric)
}

// Verify builds the verifier report of a session against the current corpus.
// Chunk vectors embedded for an earlier corpus generation are re-embedded with
// the current embedder first; if that fails the report is rules-only.
func (s *DocumentService) Verify(ctx context.Context, sessionID string) (domain.VerifierReport, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return domain.VerifierReport{}, err
	}
	view := s.corpus.Load()
	var (
		chunkIndex vectorindex.Searcher
		corpus     vectorindex.Corpus
	)
	switch {
	case sess.Index == nil:
	case sess.Generation == view.generation:
		chunkIndex = sess.Index
	default:
		idx, err := s.embedChunks(ctx, view.embedder, sess.Chunks)
		if err != nil {
			if ctx.Err() != nil {
				return domain.VerifierReport{}, ctx.Err()
			}
			logger.Warn("session %s: chunk vectors are from corpus generation %d, current is %d; re-embedding failed, reporting rules only: %v",
				sess.ID, sess.Generation, view.generation, err)
			break
		}
		logger.Info("session %s: re-embedded %d chunks for corpus generation %d", sess.ID, len(sess.Chunks), view.generation)
		chunkIndex = idx
	}
	if view.index != nil {
		corpus = view.index
	}
	return s.verifier.Verify(ctx, sess.Text, sess.Chunks, chunkIndex, corpus, s.verifyTopK)
}

// Brief returns the extractive briefing of a session.
func (s *DocumentService) Brief(ctx context.Context, sessionID string) (briefing.Brief, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return briefing.Brief{}, err
	}
	return s.summarizer.Brief(sess.Text, s.briefSentences), nil
}

// Reset destroys a session.
func (s *DocumentService) Reset(sessionID string) error {
	if err := s.sessions.Delete(sessionID); err != nil {
		return err
	}
	logger.Info("session %s: reset", sessionID)
	return nil
}

// ExpireSessions destroys sessions older than maxAge and returns how many
// went.
func (s *DocumentService) ExpireSessions(maxAge time.Duration) int {
	n := s.sessions.Expire(time.Now().Add(-maxAge))
	if n > 0 {
		logger.Info("expired %d sessions older than %s", n, maxAge)
	}
	return n
}

// CorpusStats describes the published corpus index.
type CorpusStats struct {
	Loaded     bool               `json:"loaded"`
	Entries    int                `json:"entries"`
	Dim        int                `json:"dim"`
	Metric     vectorindex.Metric `json:"metric,omitempty"`
	Generation uint64             `json:"generation"`
}

func (s *DocumentService) CorpusStats() CorpusStats {
	view := s.corpus.Load()
	c := view.index
	if c == nil {
		return CorpusStats{Generation: view.generation}
	}
	return CorpusStats{Loaded: true, Entries: c.Len(), Dim: c.Dim(), Metric: c.Metric(), Generation: view.generation}
}

// ActiveSessions returns the number of live sessions.
func (s *DocumentService) ActiveSessions() int { return s.sessions.Len() }

// ReloadCorpus loads a new corpus index, fits the embedder over its texts and
// publishes both together. On any failure the previous pair stays published.
// Sessions embedded against the previous corpus are re-embedded on their next
// Verify.
func (s *DocumentService) ReloadCorpus(ctx context.Context) (CorpusStats, error) {
	if s.loader == nil {
		return CorpusStats{}, ErrNoLoader
	}
	_, err := s.corpus.Reload(ctx, func(ctx context.Context, prev *corpusView) (*corpusView, error) {
		next, err := s.loader(ctx)
		if err != nil {
			return nil, err
		}
		view := &corpusView{index: next, embedder: prev.embedder, generation: prev.generation + 1}
		if s.embedder != nil {
			fitted, err := embedding.Fit(s.embedder, next.Texts())
			if err != nil {
				return nil, fmt.Errorf("prepare embedder: %w", err)
			}
			view.embedder = fitted
		}
		return view, nil
	})
	if err != nil {
		logger.Error("corpus reload failed, keeping previous index: %v", err)
		return s.CorpusStats(), err
	}
	stats := s.CorpusStats()
	logger.Info("corpus reloaded: generation %d, %d entries, dim %d", stats.Generation, stats.Entries, stats.Dim)
	return stats, nil
}
