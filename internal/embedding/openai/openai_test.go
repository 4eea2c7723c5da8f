package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levi/internal/embedding"
)

func fastPolicy() embedding.Policy {
	return embedding.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}
}

func TestClient_EmbedBatchOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer k1", r.Header.Get("Authorization"))
		var req embeddingsRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"first", "second"}, req.Input)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	c := newClient(Config{BaseURL: srv.URL, Retry: fastPolicy()}, embedding.NewKeyRing("k1"))
	vecs, err := c.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, 2, c.Dimension())
}

func TestClient_RotatesOnRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer k1" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5,0.5,0]}]}`))
	}))
	defer srv.Close()

	c := newClient(Config{BaseURL: srv.URL, Retry: fastPolicy()}, embedding.NewKeyRing("k1", "k2"))
	vecs, err := c.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.5, 0}}, vecs)
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newClient(Config{BaseURL: srv.URL, Retry: fastPolicy()}, embedding.NewKeyRing("k1"))
	_, err := c.Embed(context.Background(), []string{"x"})
	require.ErrorIs(t, err, embedding.ErrUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ServerErrorsExhaustAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newClient(Config{BaseURL: srv.URL, Retry: fastPolicy()}, embedding.NewKeyRing("k1"))
	_, err := c.Embed(context.Background(), []string{"x"})
	require.ErrorIs(t, err, embedding.ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("LEVI_TEST_OPENAI_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "LEVI_TEST_OPENAI_KEY"})
	require.Error(t, err)
}
