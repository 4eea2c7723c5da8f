package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "indexes/faiss_index.bin", strings.NewReader("blob")))
	require.NoError(t, s.Put(ctx, "indexes/faiss_index.bin", strings.NewReader("blob v2")))

	rc, err := s.Get(ctx, "indexes/faiss_index.bin")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "blob v2", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "indexes"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	require.NoError(t, s.Delete(ctx, "indexes/faiss_index.bin"))
	require.NoError(t, s.Delete(ctx, "indexes/faiss_index.bin"))
	_, err = s.Get(ctx, "indexes/faiss_index.bin")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_KeysStayInsideRoot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStorage(filepath.Join(dir, "root"))
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "../../escape.bin", strings.NewReader("x")))
	_, err = os.Stat(filepath.Join(dir, "root", "escape.bin"))
	require.NoError(t, err)

	require.Error(t, s.Put(ctx, "", strings.NewReader("x")))
}

func TestNew_UnsupportedType(t *testing.T) {
	_, err := New(context.Background(), Config{Type: "ftp"})
	require.Error(t, err)
}

func TestS3Key(t *testing.T) {
	s := &S3Storage{bucket: "b", prefix: "levi/indexes"}
	k, err := s.key("/faiss_index.bin.meta.json")
	require.NoError(t, err)
	assert.Equal(t, "levi/indexes/faiss_index.bin.meta.json", k)
	assert.Equal(t, "application/json", contentType(k))
}
