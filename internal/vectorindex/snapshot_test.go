package vectorindex

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_ReloadFailureKeepsPrevious(t *testing.T) {
	first, err := Build(sampleEntries(), Cosine)
	require.NoError(t, err)
	snap := NewSnapshot(first)

	_, err = snap.Reload(context.Background(), func(context.Context, *Flat) (*Flat, error) {
		return nil, ErrCorruptIndex
	})
	require.ErrorIs(t, err, ErrCorruptIndex)
	assert.Same(t, first, snap.Load())

	next, err := Build([]Entry{{ID: "z", Vector: []float32{1, 1, 1}}}, Cosine)
	require.NoError(t, err)
	got, err := snap.Reload(context.Background(), func(_ context.Context, prev *Flat) (*Flat, error) {
		assert.Same(t, first, prev)
		return next, nil
	})
	require.NoError(t, err)
	assert.Same(t, next, got)
	assert.Same(t, next, snap.Load())
}

func TestSnapshot_PublishReturnsPrevious(t *testing.T) {
	snap := NewSnapshot[Flat](nil)
	assert.Nil(t, snap.Load())

	first, err := Build(sampleEntries(), Cosine)
	require.NoError(t, err)
	assert.Nil(t, snap.Publish(first))
	assert.Same(t, first, snap.Publish(nil))
	assert.Nil(t, snap.Load())
}

func TestSnapshot_ConcurrentReaders(t *testing.T) {
	first, err := Build(sampleEntries(), Cosine)
	require.NoError(t, err)
	snap := NewSnapshot(first)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				idx := snap.Load()
				hits, err := idx.Search([]float32{1, 0, 0}, 2)
				if err != nil || len(hits) != 2 {
					t.Errorf("search on snapshot: hits=%d err=%v", len(hits), err)
					return
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		_, err := snap.Reload(context.Background(), func(_ context.Context, prev *Flat) (*Flat, error) {
			entries := sampleEntries()
			entries = append(entries, Entry{ID: "n" + string(rune('a'+i)), Vector: []float32{0, 1, float32(i)}})
			return Build(entries, Cosine)
		})
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, 4, snap.Load().Len())
}
