package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"levi/internal/embedding"
)

// Config configures the Gemini embedder. APIKeysEnv names an environment
// variable holding one or more comma-separated API keys.
type Config struct {
	APIKeysEnv string
	Model      string
	TaskType   string
	Retry      embedding.Policy
}

type batchFunc func(ctx context.Context, key string, texts []string) ([][]float32, error)

// Embedder calls the Gemini batch embedding endpoint, rotating API keys when
// a key runs out of quota.
type Embedder struct {
	model    string
	taskType genai.TaskType
	retrier  *embedding.Retrier
	embed    batchFunc

	mu        sync.Mutex
	clients   map[string]*genai.Client
	dimension int
}

// New creates a Gemini embedder. Clients are opened lazily, one per key.
func New(cfg Config) (*Embedder, error) {
	keys := embedding.NewKeyRing(embedding.ParseKeys(os.Getenv(cfg.APIKeysEnv))...)
	if keys.Len() == 0 {
		return nil, fmt.Errorf("gemini: no API keys in env %s", cfg.APIKeysEnv)
	}
	e := newEmbedder(cfg, keys, nil)
	e.embed = e.batchEmbed
	return e, nil
}

func newEmbedder(cfg Config, keys *embedding.KeyRing, fn batchFunc) *Embedder {
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}
	return &Embedder{
		model:    cfg.Model,
		taskType: parseTaskType(cfg.TaskType),
		retrier:  embedding.NewRetrier(cfg.Retry, keys),
		embed:    fn,
		clients:  make(map[string]*genai.Client),
	}
}

func (e *Embedder) Name() string { return "gemini" }

func (e *Embedder) Prepare(corpus []string) error { return nil }

func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

// Embed returns one vector per text, in order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	var out [][]float32
	err := e.retrier.Do(ctx, func(ctx context.Context, key string) error {
		vecs, err := e.embed(ctx, key, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("gemini: %d embeddings for %d texts", len(vecs), len(texts))
		}
		out = vecs
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(out[0])
	}
	e.mu.Unlock()
	return out, nil
}

// Close releases every client opened by the embedder.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var first error
	for key, c := range e.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(e.clients, key)
	}
	return first
}

func (e *Embedder) client(key string) (*genai.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.clients[key]; ok {
		return c, nil
	}
	c, err := genai.NewClient(context.Background(), option.WithAPIKey(key))
	if err != nil {
		return nil, embedding.Permanent(fmt.Errorf("gemini: create client: %w", err))
	}
	e.clients[key] = c
	return c, nil
}

func (e *Embedder) batchEmbed(ctx context.Context, key string, texts []string) ([][]float32, error) {
	c, err := e.client(key)
	if err != nil {
		return nil, err
	}
	em := c.EmbeddingModel(e.model)
	em.TaskType = e.taskType
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini: empty embedding at %d", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}

func parseTaskType(name string) genai.TaskType {
	switch strings.ToLower(name) {
	case "retrieval_query":
		return genai.TaskTypeRetrievalQuery
	case "retrieval_document":
		return genai.TaskTypeRetrievalDocument
	case "semantic_similarity":
		return genai.TaskTypeSemanticSimilarity
	case "classification":
		return genai.TaskTypeClassification
	case "clustering":
		return genai.TaskTypeClustering
	default:
		return genai.TaskTypeUnspecified
	}
}
