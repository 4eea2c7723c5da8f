package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	// SessionTTLMinutes bounds how long an uploaded document is kept.
	// A negative value keeps sessions until reset.
	SessionTTLMinutes int `yaml:"session_ttl_minutes"`
}

// SessionTTL returns the session lifetime, or 0 when sessions never expire.
func (s ServerConfig) SessionTTL() time.Duration {
	if s.SessionTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(s.SessionTTLMinutes) * time.Minute
}

// ChunkerConfig configures how documents are split into word windows.
type ChunkerConfig struct {
	MaxWords int `yaml:"max_words"`
	Overlap  int `yaml:"overlap"`
}

// RetryConfig is the resilience policy applied around remote embedding calls.
type RetryConfig struct {
	MaxAttempts           int     `yaml:"max_attempts"`
	InitialBackoffMillis  int     `yaml:"initial_backoff_ms"`
	MaxBackoffMillis      int     `yaml:"max_backoff_ms"`
	Multiplier            float64 `yaml:"multiplier"`
	ExhaustedCooldownSecs int     `yaml:"exhausted_cooldown_secs"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// GeminiEmbedderConfig holds configuration for the Gemini embedder. APIKeysEnv
// names an environment variable with one or more comma-separated keys.
type GeminiEmbedderConfig struct {
	APIKeysEnv string `yaml:"api_keys_env"`
	Model      string `yaml:"model"`
	TaskType   string `yaml:"task_type"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	BatchSize int                   `yaml:"batch_size"`
	Retry     RetryConfig           `yaml:"retry"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Gemini    *GeminiEmbedderConfig `yaml:"gemini,omitempty"`
}

// StorageConfig selects where index artifacts live.
type StorageConfig struct {
	Type         string `yaml:"type"`
	LocalPath    string `yaml:"local_path"`
	S3Bucket     string `yaml:"s3_bucket"`
	S3Region     string `yaml:"s3_region"`
	S3Prefix     string `yaml:"s3_prefix"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
}

// IndexConfig names the corpus index artifact and its metric.
type IndexConfig struct {
	Name    string        `yaml:"name"`
	Metric  string        `yaml:"metric"`
	Storage StorageConfig `yaml:"storage"`
}

// CorpusConfig configures where embedded corpus records are read from when
// building the index.
type CorpusConfig struct {
	Source         string `yaml:"source"`
	DatasetPath    string `yaml:"dataset_path"`
	EmbeddingsPath string `yaml:"embeddings_path"`
	SQLitePath     string `yaml:"sqlite_path"`
	SQLiteTable    string `yaml:"sqlite_table"`
	PostgresDSNEnv string `yaml:"postgres_dsn_env"`
	PostgresQuery  string `yaml:"postgres_query"`
}

// VerifierConfig configures report assembly.
type VerifierConfig struct {
	TopK         int `yaml:"top_k"`
	Workers      int `yaml:"workers"`
	PreviewChars int `yaml:"preview_chars"`
	SnippetChars int `yaml:"snippet_chars"`
}

// SearchConfig configures free-text corpus search. MinSimilarity is a cosine
// similarity; a best hit below it marks the query as out of context.
type SearchConfig struct {
	TopK          int     `yaml:"top_k"`
	MinSimilarity float64 `yaml:"min_similarity"`
}

// SummarizerConfig configures the extractive briefing.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Debug bool `yaml:"debug"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Index      IndexConfig      `yaml:"index"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Verifier   VerifierConfig   `yaml:"verifier"`
	Search     SearchConfig     `yaml:"search"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Log        LogConfig        `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, fills unset fields with defaults and validates the result.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/levi/config.yaml.
// If neither exists, it writes defaults to ~/.config/levi/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings the components would refuse at construction time.
func (c *AppConfig) Validate() error {
	if c.Chunker.Overlap < 0 || c.Chunker.MaxWords <= c.Chunker.Overlap {
		return fmt.Errorf("config: chunker overlap must be >= 0 and < max_words (max_words=%d, overlap=%d)",
			c.Chunker.MaxWords, c.Chunker.Overlap)
	}
	switch strings.ToLower(c.Index.Metric) {
	case "cosine", "l2":
	default:
		return fmt.Errorf("config: unknown index metric %q", c.Index.Metric)
	}
	switch c.Embedder.Type {
	case "tfidf", "openai", "gemini":
	default:
		return fmt.Errorf("config: unknown embedder %q", c.Embedder.Type)
	}
	switch c.Index.Storage.Type {
	case "local":
	case "s3":
		if c.Index.Storage.S3Bucket == "" {
			return errors.New("config: s3 storage requires s3_bucket")
		}
	default:
		return fmt.Errorf("config: unknown storage %q", c.Index.Storage.Type)
	}
	switch c.Corpus.Source {
	case "jsonl", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown corpus source %q", c.Corpus.Source)
	}
	if c.Verifier.TopK < 0 || c.Search.TopK < 0 {
		return errors.New("config: top_k must not be negative")
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "levi", "config.yaml"), nil
}

// Default returns the built-in configuration: local artifacts under ./data,
// an offline TF-IDF embedder and the 500/50 word chunking used for uploads.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8000"
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 * 1024 * 1024
	}
	if cfg.Server.SessionTTLMinutes == 0 {
		cfg.Server.SessionTTLMinutes = 120
	}
	if cfg.Chunker.MaxWords == 0 {
		cfg.Chunker.MaxWords = 500
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = 50
		}
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 50
	}
	r := &cfg.Embedder.Retry
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoffMillis == 0 {
		r.InitialBackoffMillis = 1000
	}
	if r.MaxBackoffMillis == 0 {
		r.MaxBackoffMillis = 30000
	}
	if r.Multiplier == 0 {
		r.Multiplier = 2
	}
	if r.ExhaustedCooldownSecs == 0 {
		r.ExhaustedCooldownSecs = 60
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
	}
	if cfg.Embedder.Type == "gemini" {
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		g := cfg.Embedder.Gemini
		if g.APIKeysEnv == "" {
			g.APIKeysEnv = "GEMINI_API_KEYS"
		}
		if g.Model == "" {
			g.Model = "gemini-embedding-001"
		}
		if g.TaskType == "" {
			g.TaskType = "retrieval_document"
		}
	}
	if cfg.Index.Name == "" {
		cfg.Index.Name = "faiss_index.bin"
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = "cosine"
	}
	if cfg.Index.Storage.Type == "" {
		cfg.Index.Storage.Type = "local"
	}
	if cfg.Index.Storage.LocalPath == "" {
		cfg.Index.Storage.LocalPath = "data"
	}
	if cfg.Index.Storage.AccessKeyEnv == "" {
		cfg.Index.Storage.AccessKeyEnv = "AWS_ACCESS_KEY_ID"
	}
	if cfg.Index.Storage.SecretKeyEnv == "" {
		cfg.Index.Storage.SecretKeyEnv = "AWS_SECRET_ACCESS_KEY"
	}
	if cfg.Corpus.Source == "" {
		cfg.Corpus.Source = "jsonl"
	}
	if cfg.Corpus.DatasetPath == "" {
		cfg.Corpus.DatasetPath = "data/merged_dataset.jsonl"
	}
	if cfg.Corpus.EmbeddingsPath == "" {
		cfg.Corpus.EmbeddingsPath = "data/embeddings.jsonl"
	}
	if cfg.Corpus.SQLitePath == "" {
		cfg.Corpus.SQLitePath = "data/corpus.db"
	}
	if cfg.Corpus.SQLiteTable == "" {
		cfg.Corpus.SQLiteTable = "docs"
	}
	if cfg.Corpus.PostgresDSNEnv == "" {
		cfg.Corpus.PostgresDSNEnv = "DATABASE_URL"
	}
	if cfg.Verifier.TopK == 0 {
		cfg.Verifier.TopK = 3
	}
	if cfg.Verifier.Workers == 0 {
		cfg.Verifier.Workers = 4
	}
	if cfg.Verifier.PreviewChars == 0 {
		cfg.Verifier.PreviewChars = 100
	}
	if cfg.Verifier.SnippetChars == 0 {
		cfg.Verifier.SnippetChars = 300
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 5
	}
	if cfg.Search.MinSimilarity == 0 {
		cfg.Search.MinSimilarity = 0.1
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}
}
