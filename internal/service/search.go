package service

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"levi/internal/domain"
	"levi/internal/embedding"
	"levi/internal/logger"
	"levi/internal/vectorindex"
	"levi/internal/verifier"
)

const (
	ModeVector  = "vector"
	ModeLexical = "lexical"
)

// SearchResult is the answer to a free-text corpus query.
type SearchResult struct {
	Query        string                  `json:"query"`
	Mode         string                  `json:"mode"`
	OutOfContext bool                    `json:"out_of_context"`
	Results      []domain.NeighborResult `json:"results"`
}

// SearchCorpus returns the k corpus entries closest to query. Queries whose
// embedding is all zeros, or that cannot be embedded, fall back to token
// overlap ranking. A query is out of context when its best score is below
// the configured minimum similarity.
func (s *DocumentService) SearchCorpus(ctx context.Context, query string, k int) (SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResult{}, ErrEmptyQuery
	}
	view := s.corpus.Load()
	corpus := view.index
	if corpus == nil || corpus.Len() == 0 {
		return SearchResult{}, ErrNoCorpus
	}
	if k <= 0 {
		k = s.searchTopK
	}

	res := SearchResult{Query: query, Mode: ModeVector}
	vec, err := embedQuery(ctx, view.embedder, query)
	switch {
	case err != nil && !errors.Is(err, embedding.ErrUnavailable):
		return SearchResult{}, err
	case err != nil:
		logger.Warn("search: embedding unavailable, using lexical ranking: %v", err)
		res.Mode = ModeLexical
	case isZero(vec):
		res.Mode = ModeLexical
	}

	if res.Mode == ModeVector {
		res.Results, err = vectorindex.Neighbors(corpus, vec, k)
		if err != nil {
			return SearchResult{}, err
		}
		if corpus.Metric() == vectorindex.L2 {
			// Distances have no fixed similarity scale.
			res.OutOfContext = len(res.Results) == 0
		} else {
			res.OutOfContext = len(res.Results) == 0 || res.Results[0].Score < s.minSimilarity
		}
	} else {
		res.Results = lexicalSearch(corpus, query, k)
		res.OutOfContext = len(res.Results) == 0 || res.Results[0].Score < s.minSimilarity
	}
	for i := range res.Results {
		res.Results[i].Text = verifier.Truncate(res.Results[i].Text, s.snippetRunes)
	}
	return res, nil
}

func embedQuery(ctx context.Context, e domain.Embedder, query string) ([]float32, error) {
	if e == nil {
		return nil, embedding.Unavailable(errors.New("no embedder configured"))
	}
	vecs, err := embedding.EmbedAll(ctx, e, []string{query}, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

var unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// lexicalSearch ranks corpus texts by the Ochiai coefficient of their token
// sets with the query. Entries sharing no token are left out.
func lexicalSearch(corpus *vectorindex.Flat, query string, k int) []domain.NeighborResult {
	qset := toTokenSet(query)
	ids, texts := corpus.IDs(), corpus.Texts()
	out := make([]domain.NeighborResult, 0, k)
	for i, text := range texts {
		if score := overlapOchiai(qset, text); score > 0 {
			out = append(out, domain.NeighborResult{ID: ids[i], Score: score, Text: text})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over distinct tokens.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	seen := toTokenSet(text)
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	inter := 0
	for t := range seen {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
