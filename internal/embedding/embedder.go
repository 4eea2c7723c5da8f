// Package embedding holds the embedder implementations and the resilience
// policy shared by the remote ones.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"levi/internal/domain"
)

// ErrUnavailable marks a failure of the external embedding capability. Callers
// degrade to rule-only results when they see it.
var ErrUnavailable = errors.New("embedding: unavailable")

// Embedder is the capability consumed by the rest of the application.
type Embedder = domain.Embedder

// Fitter is implemented by embedders whose vector space is learned from a
// corpus. Fit returns a new embedder prepared over corpus and leaves the
// receiver untouched, so vectors it already produced stay comparable.
type Fitter interface {
	Fit(corpus []string) (Embedder, error)
}

// Fit returns an embedder prepared over corpus. Fitters produce a fresh
// instance; any other embedder is prepared in place and returned.
func Fit(e Embedder, corpus []string) (Embedder, error) {
	if f, ok := e.(Fitter); ok {
		return f.Fit(corpus)
	}
	if err := e.Prepare(corpus); err != nil {
		return nil, err
	}
	return e, nil
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds while the
// original cause stays reachable.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// EmbedAll embeds texts in batches of batchSize and checks that the embedder
// returned one vector per text with a single dimension across batches.
func EmbedAll(ctx context.Context, e Embedder, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	dim := -1
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, Unavailable(err)
		}
		if len(vecs) != end-start {
			return nil, Unavailable(fmt.Errorf("%s returned %d vectors for %d texts", e.Name(), len(vecs), end-start))
		}
		for _, v := range vecs {
			if dim == -1 {
				dim = len(v)
			}
			if len(v) != dim || dim == 0 {
				return nil, Unavailable(fmt.Errorf("%s returned inconsistent dimensions %d and %d", e.Name(), dim, len(v)))
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}
