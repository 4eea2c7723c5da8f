package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"levi/internal/embedding"
)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
	retrier *embedding.Retrier

	mu        sync.Mutex
	dimension int
}

// Config configures the OpenAI-compatible embeddings client. APIKeyEnv may
// hold several comma-separated keys; they are rotated on 429 responses.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	Retry     embedding.Policy
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	keys := embedding.NewKeyRing(embedding.ParseKeys(os.Getenv(cfg.APIKeyEnv))...)
	if keys.Len() == 0 {
		return nil, fmt.Errorf("openai: missing API key in env %s", cfg.APIKeyEnv)
	}
	return newClient(cfg, keys), nil
}

func newClient(cfg Config, keys *embedding.KeyRing) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		retrier: embedding.NewRetrier(cfg.Retry, keys),
	}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Prepare is not required for remote embedding. The dimension is set on first embed.
func (c *Client) Prepare(corpus []string) error { return nil }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimension
}

// Embed returns one embedding per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	var out [][]float32
	err := c.retrier.Do(ctx, func(ctx context.Context, key string) error {
		vecs, err := c.request(ctx, key, texts)
		if err != nil {
			return err
		}
		out = vecs
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.dimension == 0 && len(out) > 0 {
		c.dimension = len(out[0])
	}
	c.mu.Unlock()
	return out, nil
}

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	// Ollama-native shape for single inputs.
	Embedding []float32 `json:"embedding"`
}

func (c *Client) request(ctx context.Context, key string, texts []string) ([][]float32, error) {
	data, err := json.Marshal(embeddingsRequest{Input: texts, Model: c.model})
	if err != nil {
		return nil, embedding.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, embedding.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("openai: %s: %w", resp.Status, embedding.ErrQuota)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("openai: %s", resp.Status)
	case resp.StatusCode >= 300:
		return nil, embedding.Permanent(fmt.Errorf("openai: %s: %s", resp.Status, bytes.TrimSpace(payload)))
	}

	var out embeddingsResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(out.Data) == 0 && len(out.Embedding) > 0 && len(texts) == 1 {
		return [][]float32{out.Embedding}, nil
	}
	if len(out.Data) != len(texts) {
		return nil, errors.New("openai: embedding count does not match input count")
	}
	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		if len(d.Embedding) == 0 {
			return nil, errors.New("openai: empty embedding")
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
