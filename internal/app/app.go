// Package app assembles the configured components into a running document
// service. Both commands build on it.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"levi/internal/chunker"
	"levi/internal/config"
	"levi/internal/domain"
	"levi/internal/embedding"
	"levi/internal/embedding/gemini"
	"levi/internal/embedding/openai"
	"levi/internal/embedding/tfidf"
	"levi/internal/logger"
	"levi/internal/service"
	"levi/internal/storage"
	"levi/internal/vectorindex"
	"levi/internal/verifier"
)

// App holds the assembled components.
type App struct {
	Config   *config.AppConfig
	Service  *service.DocumentService
	Storage  storage.Storage
	Embedder domain.Embedder

	closers []func()
}

// New builds the service described by cfg and loads the corpus index from
// storage. A missing or unreadable index is logged and the service starts
// without a corpus; it can be loaded later with ReloadCorpus.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	metric, err := vectorindex.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.NewWordChunker(cfg.Chunker.MaxWords, cfg.Chunker.Overlap)
	if err != nil {
		return nil, err
	}
	store, err := NewStorage(ctx, cfg.Index.Storage)
	if err != nil {
		return nil, err
	}
	emb, closeEmb, err := NewEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Storage: store, Embedder: emb, closers: []func(){closeEmb}}

	v := verifier.New(
		verifier.WithWorkers(cfg.Verifier.Workers),
		verifier.WithPreviewRunes(cfg.Verifier.PreviewChars),
		verifier.WithSnippetRunes(cfg.Verifier.SnippetChars),
	)
	a.Service, err = service.NewDocumentService(
		service.WithChunker(ch),
		service.WithEmbedder(emb),
		service.WithVerifier(v),
		service.WithMetric(metric),
		service.WithBatchSize(cfg.Embedder.BatchSize),
		service.WithVerifyTopK(cfg.Verifier.TopK),
		service.WithSearch(cfg.Search.TopK, cfg.Search.MinSimilarity),
		service.WithBriefSentences(cfg.Summarizer.MaxSentences),
		service.WithSnippetRunes(cfg.Verifier.SnippetChars),
		service.WithCorpusLoader(CorpusLoader(store, cfg.Index.Name)),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	if _, err := a.Service.ReloadCorpus(ctx); err != nil {
		logger.Warn("starting without a corpus index (%s): %v", cfg.Index.Name, err)
	}
	return a, nil
}

// Close releases embedder clients.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// RunSessionExpiry destroys sessions older than ttl every interval until ctx
// is done. A ttl of 0 returns at once.
func RunSessionExpiry(ctx context.Context, svc *service.DocumentService, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			svc.ExpireSessions(ttl)
		}
	}
}

// CorpusLoader loads the index artifacts called name from store.
func CorpusLoader(store storage.Storage, name string) service.CorpusLoader {
	return func(ctx context.Context) (*vectorindex.Flat, error) {
		return vectorindex.Load(ctx, store, name)
	}
}

// RetryPolicy converts the configured retry section.
func RetryPolicy(r config.RetryConfig) embedding.Policy {
	return embedding.Policy{
		MaxAttempts:       r.MaxAttempts,
		InitialInterval:   time.Duration(r.InitialBackoffMillis) * time.Millisecond,
		MaxInterval:       time.Duration(r.MaxBackoffMillis) * time.Millisecond,
		Multiplier:        r.Multiplier,
		ExhaustedCooldown: time.Duration(r.ExhaustedCooldownSecs) * time.Second,
	}
}

// NewEmbedder builds the configured embedder and a function releasing it.
func NewEmbedder(cfg config.EmbedderConfig) (domain.Embedder, func(), error) {
	switch cfg.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), func() {}, nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			Retry:     RetryPolicy(cfg.Retry),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, func() {}, nil
	case "gemini":
		if cfg.Gemini == nil {
			return nil, nil, fmt.Errorf("gemini embedder config missing")
		}
		e, err := gemini.New(gemini.Config{
			APIKeysEnv: cfg.Gemini.APIKeysEnv,
			Model:      cfg.Gemini.Model,
			TaskType:   cfg.Gemini.TaskType,
			Retry:      RetryPolicy(cfg.Retry),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gemini embedder init failed: %w", err)
		}
		return e, func() { e.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

// NewStorage builds the artifact storage, reading AWS keys from the
// environment variables the config names.
func NewStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	return storage.New(ctx, storage.Config{
		Type:         storage.Type(cfg.Type),
		LocalPath:    cfg.LocalPath,
		S3Bucket:     cfg.S3Bucket,
		S3Region:     cfg.S3Region,
		S3Prefix:     cfg.S3Prefix,
		AWSAccessKey: os.Getenv(cfg.AccessKeyEnv),
		AWSSecretKey: os.Getenv(cfg.SecretKeyEnv),
	})
}
