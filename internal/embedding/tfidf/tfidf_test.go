package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed_RequiresPrepare(t *testing.T) {
	_, err := NewEmbedder().Embed(context.Background(), []string{"x"})
	require.Error(t, err)
}

func TestPrepare_EmptyCorpus(t *testing.T) {
	require.Error(t, NewEmbedder().Prepare(nil))
	require.Error(t, NewEmbedder().Prepare([]string{"the and of"}))
}

func TestEmbed_NormalizedAndOrdered(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{
		"lease agreement between landlord and tenant",
		"sale deed for immovable property",
		"employment contract with notice period",
	}))
	require.Equal(t, 13, e.Dimension())

	vecs, err := e.Embed(context.Background(), []string{"landlord tenant lease", "unknown words only", "property sale"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, e.Dimension())
	}

	norm := 0.0
	for _, x := range vecs[0] {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	for _, x := range vecs[1] {
		assert.Equal(t, float32(0), x)
	}
}

func TestEmbed_Deterministic(t *testing.T) {
	corpus := []string{"court of appeal judgment", "arbitration tribunal award"}
	a, b := NewEmbedder(), NewEmbedder()
	require.NoError(t, a.Prepare(corpus))
	require.NoError(t, b.Prepare(corpus))
	va, err := a.Embed(context.Background(), []string{"tribunal award"})
	require.NoError(t, err)
	vb, err := b.Embed(context.Background(), []string{"tribunal award"})
	require.NoError(t, err)
	assert.Equal(t, va, vb)
}

func TestFit_LeavesReceiverUntouched(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{"rent landlord tenant", "witness signatory"}))
	before, err := e.Embed(ctx, []string{"tenant pays rent"})
	require.NoError(t, err)

	fitted, err := e.Fit([]string{"arbitration tribunal seat"})
	require.NoError(t, err)
	assert.NotSame(t, e, fitted)
	assert.Equal(t, 3, fitted.Dimension())
	assert.Equal(t, 5, e.Dimension())

	after, err := e.Embed(ctx, []string{"tenant pays rent"})
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = e.Fit(nil)
	require.Error(t, err)
}
