package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type LLMConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	MaxTokens int    `toml:"max_tokens"`
}

// EmbeddingConfig must be identical for ingestion and serving. Model and
// Dimension are stamped into the index and checked when it is opened.
type EmbeddingConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	Dimension int    `toml:"dimension"`
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
}

type IndexConfig struct {
	Backend  string `toml:"backend"`
	Path     string `toml:"path"`
	DSN      string `toml:"dsn"`
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type RetrievalConfig struct {
	TopK     int     `toml:"top_k"`
	MinScore float64 `toml:"min_score"`
}

type GenerationConfig struct {
	MaxAttempts  int      `toml:"max_attempts"`
	RetryBackoff Duration `toml:"retry_backoff"`
	Timeout      Duration `toml:"timeout"`
}

type CacheConfig struct {
	Backend   string   `toml:"backend"`
	TTL       Duration `toml:"ttl"`
	RedisAddr string   `toml:"redis_addr"`
}

type IngestConfig struct {
	Dir         string `toml:"dir"`
	Mode        string `toml:"mode"`
	Concurrency int    `toml:"concurrency"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type Prompts struct {
	System string `toml:"system"`
}

type Config struct {
	LLM        LLMConfig        `toml:"llm"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Index      IndexConfig      `toml:"index"`
	Retrieval  RetrievalConfig  `toml:"retrieval"`
	Generation GenerationConfig `toml:"generation"`
	Cache      CacheConfig      `toml:"cache"`
	Ingest     IngestConfig     `toml:"ingest"`
	Server     ServerConfig     `toml:"server"`
	Prompts    Prompts          `toml:"prompts"`
}

// Duration lets TOML carry values such as "30s" or "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "ollama",
			Model:     "gpt-oss:latest",
			BaseURL:   "http://localhost:11434",
			MaxTokens: 1024,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "hash-bow-v1",
			Dimension: 384,
		},
		Index: IndexConfig{
			Backend: "sqlite",
			Path:    "data/transcripts.db",
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Generation: GenerationConfig{
			MaxAttempts:  3,
			RetryBackoff: Duration{500 * time.Millisecond},
			Timeout:      Duration{60 * time.Second},
		},
		Cache: CacheConfig{
			Backend: "none",
			TTL:     Duration{10 * time.Minute},
		},
		Ingest: IngestConfig{
			Dir:         "data/transcripts",
			Mode:        "rebuild",
			Concurrency: 4,
		},
		Server: ServerConfig{
			Port: "8000",
		},
	}
}

// Load reads a TOML file on top of Default. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides file values with environment variables when they are set.
func (c *Config) ApplyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("LLM_PROVIDER", &c.LLM.Provider)
	setString("LLM_MODEL", &c.LLM.Model)
	setString("LLM_API_KEY", &c.LLM.APIKey)
	setString("LLM_BASE_URL", &c.LLM.BaseURL)
	setString("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	setString("EMBEDDING_MODEL", &c.Embedding.Model)
	setString("EMBEDDING_API_KEY", &c.Embedding.APIKey)
	setString("EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	setString("INDEX_BACKEND", &c.Index.Backend)
	setString("INDEX_PATH", &c.Index.Path)
	setString("DATABASE_URL", &c.Index.DSN)
	setString("MEMGRAPH_URI", &c.Index.URI)
	setString("MEMGRAPH_USER", &c.Index.User)
	setString("MEMGRAPH_PASSWORD", &c.Index.Password)
	setString("CACHE_BACKEND", &c.Cache.Backend)
	setString("REDIS_ADDR", &c.Cache.RedisAddr)
	setString("PORT", &c.Server.Port)

	if v := os.Getenv("EMBEDDING_DIMENSION"); v != "" {
		dim, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid EMBEDDING_DIMENSION %q: %w", v, err)
		}
		c.Embedding.Dimension = dim
	}

	// Embeddings fall back to the generation credentials of the same provider.
	if c.Embedding.APIKey == "" && strings.EqualFold(c.Embedding.Provider, c.LLM.Provider) {
		c.Embedding.APIKey = c.LLM.APIKey
	}
	if c.Embedding.BaseURL == "" && strings.EqualFold(c.Embedding.Provider, c.LLM.Provider) {
		c.Embedding.BaseURL = c.LLM.BaseURL
	}

	return nil
}

var (
	indexBackends = map[string]bool{"sqlite": true, "pgvector": true, "memgraph": true, "memory": true}
	cacheBackends = map[string]bool{"": true, "none": true, "memory": true, "redis": true}
	ingestModes   = map[string]bool{"rebuild": true, "incremental": true}
)

func (c *Config) Validate() error {
	var errs []error

	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, errors.New("embedding.model is required"))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Generation.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("generation.max_attempts must be positive, got %d", c.Generation.MaxAttempts))
	}
	if !indexBackends[strings.ToLower(c.Index.Backend)] {
		errs = append(errs, fmt.Errorf("unsupported index backend: %s", c.Index.Backend))
	}
	if !cacheBackends[strings.ToLower(c.Cache.Backend)] {
		errs = append(errs, fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend))
	}
	if !ingestModes[strings.ToLower(c.Ingest.Mode)] {
		errs = append(errs, fmt.Errorf("unsupported ingest mode: %s", c.Ingest.Mode))
	}

	return errors.Join(errs...)
}

// Path resolves the config file location from CONFIG_PATH.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.toml"
}
