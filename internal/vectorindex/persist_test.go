package vectorindex

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStore() *memStore { return &memStore{files: map[string][]byte{}} }

func (m *memStore) Put(_ context.Context, key string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = b
	return nil
}

func (m *memStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[key]
	if !ok {
		return nil, errors.New("not found: " + key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	idx, err := Build(sampleEntries(), Cosine)
	require.NoError(t, err)
	require.NoError(t, Save(ctx, store, "faiss_index.bin", idx))
	assert.Contains(t, store.files, "faiss_index.bin.meta.json")

	loaded, err := Load(ctx, store, "faiss_index.bin")
	require.NoError(t, err)
	assert.Equal(t, idx.Metric(), loaded.Metric())
	assert.Equal(t, idx.Dim(), loaded.Dim())
	assert.Equal(t, idx.IDs(), loaded.IDs())
	assert.Equal(t, idx.Texts(), loaded.Texts())
	for pos := 0; pos < idx.Len(); pos++ {
		want, _ := idx.Reconstruct(pos)
		got, err := loaded.Reconstruct(pos)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	pos, ok := loaded.Position("c")
	require.True(t, ok)
	assert.Equal(t, 2, pos)
}

func TestLoad_MetaCountMismatch(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	idx, err := Build(sampleEntries(), L2)
	require.NoError(t, err)
	require.NoError(t, Save(ctx, store, "idx", idx))

	bad, _ := json.Marshal(Meta{IDs: []string{"a", "b"}, Texts: []string{"cat", "dog"}})
	store.files[MetaKey("idx")] = bad
	_, err = Load(ctx, store, "idx")
	require.ErrorIs(t, err, ErrCorruptIndex)

	bad, _ = json.Marshal(Meta{IDs: []string{"a", "b", "c"}, Texts: []string{"cat", "dog"}})
	store.files[MetaKey("idx")] = bad
	_, err = Load(ctx, store, "idx")
	require.ErrorIs(t, err, ErrCorruptIndex)
}

func TestLoad_CorruptBlob(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	idx, err := Build(sampleEntries(), Cosine)
	require.NoError(t, err)
	require.NoError(t, Save(ctx, store, "idx", idx))
	good := store.files["idx"]

	cases := map[string][]byte{
		"short header": good[:7],
		"bad magic":    append([]byte("NOPE"), good[4:]...),
		"truncated":    good[:len(good)-2],
		"trailing":     append(append([]byte(nil), good...), 0, 0, 0, 0),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			store.files["idx"] = data
			_, err := Load(ctx, store, "idx")
			require.ErrorIs(t, err, ErrCorruptIndex)
		})
	}
}

func TestLoad_OversizedHeaderIsRejectedBeforeAllocation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	idx, err := Build(sampleEntries(), Cosine)
	require.NoError(t, err)
	require.NoError(t, Save(ctx, store, "idx", idx))

	data := append([]byte(nil), store.files["idx"]...)
	binary.LittleEndian.PutUint32(data[12:], 0x0FFFFFFF)
	binary.LittleEndian.PutUint32(data[16:], 0xFFFFFFFF)
	store.files["idx"] = data

	_, err = Load(ctx, store, "idx")
	require.ErrorIs(t, err, ErrCorruptIndex)
	assert.Contains(t, err.Error(), "payload")
}

func TestLoad_DuplicateIDs(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	idx, err := Build(sampleEntries(), Cosine)
	require.NoError(t, err)
	require.NoError(t, Save(ctx, store, "idx", idx))
	bad, _ := json.Marshal(Meta{IDs: []string{"a", "a", "c"}, Texts: []string{"1", "2", "3"}})
	store.files[MetaKey("idx")] = bad
	_, err = Load(ctx, store, "idx")
	require.ErrorIs(t, err, ErrCorruptIndex)
}

func TestLoad_MissingArtifact(t *testing.T) {
	_, err := Load(context.Background(), newMemStore(), "absent")
	require.Error(t, err)
}

func TestSaveLoad_Empty(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	idx, err := New(Cosine)
	require.NoError(t, err)
	require.NoError(t, Save(ctx, store, "empty", idx))
	loaded, err := Load(ctx, store, "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
	_, err = loaded.Search([]float32{1}, 1)
	require.ErrorIs(t, err, ErrEmptyIndex)
}

func TestEncodeDecodeVector(t *testing.T) {
	vec := []float32{1.5, -2.25, 0, 3.125}
	got, err := DecodeVector(EncodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = DecodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}
