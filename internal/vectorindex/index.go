package vectorindex

import (
	"errors"
	"fmt"
	"strings"

	"levi/internal/domain"
)

var (
	ErrDimensionMismatch = errors.New("vectorindex: dimension mismatch")
	ErrCorruptIndex      = errors.New("vectorindex: corrupt index")
	ErrEmptyIndex        = errors.New("vectorindex: empty index")
	ErrOutOfRange        = errors.New("vectorindex: position out of range")
	ErrDuplicateID       = errors.New("vectorindex: duplicate id")
	ErrUnknownMetric     = errors.New("vectorindex: unknown metric")
)

// Metric selects how stored vectors are compared with a query.
type Metric string

const (
	// Cosine scores by cosine similarity; higher is closer.
	Cosine Metric = "cosine"
	// L2 scores by Euclidean distance; lower is closer.
	L2 Metric = "l2"
)

// ParseMetric resolves a metric name, case-insensitively.
func ParseMetric(name string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(name))) {
	case Cosine, "":
		return Cosine, nil
	case L2:
		return L2, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
}

// better reports whether score a ranks strictly ahead of score b.
func (m Metric) better(a, b float64) bool {
	if m == L2 {
		return a < b
	}
	return a > b
}

// Entry is one corpus record: a unique id, its text and its embedding.
type Entry struct {
	ID     string
	Text   string
	Vector []float32
}

// Hit is a search result addressed by insertion position.
type Hit struct {
	Position int
	Score    float64
}

// Searcher is the read side of an index, as consumed by the verifier.
type Searcher interface {
	Len() int
	Search(query []float32, k int) ([]Hit, error)
	Reconstruct(position int) ([]float32, error)
}

// Corpus is a searcher whose positions resolve to identified texts.
type Corpus interface {
	Searcher
	ID(position int) (string, error)
	Text(position int) (string, error)
}

// Neighbors runs a search and resolves every hit to its id and full text.
func Neighbors(c Corpus, query []float32, k int) ([]domain.NeighborResult, error) {
	hits, err := c.Search(query, k)
	if err != nil {
		return nil, err
	}
	out := make([]domain.NeighborResult, 0, len(hits))
	for _, h := range hits {
		id, err := c.ID(h.Position)
		if err != nil {
			return nil, err
		}
		text, err := c.Text(h.Position)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.NeighborResult{ID: id, Score: h.Score, Text: text})
	}
	return out, nil
}
