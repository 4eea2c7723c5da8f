package vectorindex

import (
	"fmt"
	"math"
	"sort"

	"github.com/viant/vec/search"
)

// Flat is an exact brute-force index. Positions are assigned in insertion order
// and address the parallel ids, texts and vectors slices.
type Flat struct {
	metric    Metric
	dim       int
	ids       []string
	texts     []string
	vecs      [][]float32
	positions map[string]int
}

// New returns an empty index for metric. The dimension is fixed by the first Add.
func New(metric Metric) (*Flat, error) {
	if metric != Cosine && metric != L2 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	return &Flat{metric: metric, positions: make(map[string]int)}, nil
}

// Build constructs an index over entries in order.
func Build(entries []Entry, metric Metric) (*Flat, error) {
	f, err := New(metric)
	if err != nil {
		return nil, err
	}
	if err := f.Add(entries...); err != nil {
		return nil, err
	}
	return f, nil
}

// Add appends entries. All entries are validated before any is stored, so a
// failed Add leaves the index unchanged.
func (f *Flat) Add(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	dim := f.dim
	if len(f.vecs) == 0 {
		dim = len(entries[0].Vector)
	}
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %d (%q) has %d values, index expects %d",
				ErrDimensionMismatch, i, e.ID, len(e.Vector), dim)
		}
		if _, ok := f.positions[e.ID]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateID, e.ID)
		}
		if _, ok := seen[e.ID]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateID, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	if dim == 0 {
		return fmt.Errorf("%w: zero-length vectors", ErrDimensionMismatch)
	}
	f.dim = dim
	for _, e := range entries {
		vec := make([]float32, dim)
		copy(vec, e.Vector)
		if f.metric == Cosine {
			normalize(vec)
		}
		f.positions[e.ID] = len(f.ids)
		f.ids = append(f.ids, e.ID)
		f.texts = append(f.texts, e.Text)
		f.vecs = append(f.vecs, vec)
	}
	return nil
}

func (f *Flat) Len() int       { return len(f.vecs) }
func (f *Flat) Dim() int       { return f.dim }
func (f *Flat) Metric() Metric { return f.metric }

// Search returns up to k hits ordered best-first. Equal scores keep insertion
// order. k larger than the index size is clamped; k <= 0 returns no hits.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	if len(f.vecs) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d values, index expects %d", ErrDimensionMismatch, len(query), f.dim)
	}
	q := query
	if f.metric == Cosine {
		q = make([]float32, len(query))
		copy(q, query)
		normalize(q)
	}
	hits := make([]Hit, len(f.vecs))
	for pos, v := range f.vecs {
		hits[pos] = Hit{Position: pos, Score: f.score(q, v)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return f.metric.better(hits[a].Score, hits[b].Score)
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Reconstruct returns a copy of the stored vector at position, normalized when
// the index metric is cosine.
func (f *Flat) Reconstruct(position int) ([]float32, error) {
	if position < 0 || position >= len(f.vecs) {
		return nil, fmt.Errorf("%w: %d (size %d)", ErrOutOfRange, position, len(f.vecs))
	}
	out := make([]float32, f.dim)
	copy(out, f.vecs[position])
	return out, nil
}

// ID returns the entry id stored at position.
func (f *Flat) ID(position int) (string, error) {
	if position < 0 || position >= len(f.ids) {
		return "", fmt.Errorf("%w: %d (size %d)", ErrOutOfRange, position, len(f.ids))
	}
	return f.ids[position], nil
}

// Text returns the entry text stored at position.
func (f *Flat) Text(position int) (string, error) {
	if position < 0 || position >= len(f.texts) {
		return "", fmt.Errorf("%w: %d (size %d)", ErrOutOfRange, position, len(f.texts))
	}
	return f.texts[position], nil
}

// Position looks up the insertion position of id.
func (f *Flat) Position(id string) (int, bool) {
	pos, ok := f.positions[id]
	return pos, ok
}

// IDs returns a copy of the ids in position order.
func (f *Flat) IDs() []string { return append([]string(nil), f.ids...) }

// Texts returns a copy of the texts in position order.
func (f *Flat) Texts() []string { return append([]string(nil), f.texts...) }

func (f *Flat) score(q, v []float32) float64 {
	if f.metric == L2 {
		return float64(search.Float32s(v).EuclideanDistance(q))
	}
	s := dot(q, v)
	// float32 rounding can push unit vectors marginally past the bound
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return s
}

func normalize(v []float32) {
	m := search.Float32s(v).Magnitude()
	if m == 0 || math.IsNaN(float64(m)) {
		return
	}
	for i := range v {
		v[i] /= m
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
