package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	batches [][]string
	dims    []int
	err     error
}

func (s *stubEmbedder) Name() string { return "stub" }
func (s *stubEmbedder) Prepare([]string) error { return nil }
func (s *stubEmbedder) Dimension() int { return 2 }
func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.batches = append(s.batches, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		dim := 2
		if len(s.dims) > 0 {
			dim, s.dims = s.dims[0], s.dims[1:]
		}
		out[i] = make([]float32, dim)
	}
	return out, nil
}

func TestEmbedAll_Batches(t *testing.T) {
	s := &stubEmbedder{}
	vecs, err := EmbedAll(context.Background(), s, []string{"a", "b", "c", "d", "e"}, 2)
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, s.batches)

	vecs, err = EmbedAll(context.Background(), s, nil, 2)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestEmbedAll_Failures(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	_, err := EmbedAll(context.Background(), &stubEmbedder{err: cause}, []string{"a"}, 0)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, cause)

	_, err = EmbedAll(context.Background(), &stubEmbedder{dims: []int{2, 3}}, []string{"a", "b"}, 0)
	require.ErrorIs(t, err, ErrUnavailable)
}

type fitStub struct {
	stubEmbedder
	fitted []string
}

func (f *fitStub) Fit(corpus []string) (Embedder, error) {
	return &fitStub{fitted: corpus}, nil
}

func TestFit(t *testing.T) {
	plain := &stubEmbedder{}
	got, err := Fit(plain, []string{"a"})
	require.NoError(t, err)
	assert.Same(t, plain, got)

	orig := &fitStub{}
	got, err = Fit(orig, []string{"a", "b"})
	require.NoError(t, err)
	require.NotSame(t, orig, got)
	assert.Equal(t, []string{"a", "b"}, got.(*fitStub).fitted)
	assert.Nil(t, orig.fitted)
}
