// Package app wires configuration into the components shared by the server
// and the ingestion CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/agenthands/tuberag/internal/config"
	"github.com/agenthands/tuberag/internal/embedding"
	"github.com/agenthands/tuberag/internal/index"
	"github.com/agenthands/tuberag/internal/llm"
	"github.com/agenthands/tuberag/internal/rag"
)

// LoadConfig reads the TOML file, applies environment overrides and
// validates the result.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Embedder builds the configured embedder. Query caching is only applied
// when withCache is set; ingestion embeds every document fresh.
func Embedder(ctx context.Context, cfg *config.Config, withCache bool) (embedding.Embedder, error) {
	e, err := embedding.New(ctx, cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if !withCache {
		return e, nil
	}
	c, err := embedding.NewCache(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding cache: %w", err)
	}
	if c != nil {
		slog.Info("query embedding cache enabled", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL.Duration)
	}
	return embedding.WithCache(e, c), nil
}

// Index opens the configured backend stamped with the embedder's identity.
func Index(ctx context.Context, cfg *config.Config, e embedding.Embedder) (index.Index, error) {
	meta := index.Meta{Model: e.Model(), Dimension: e.Dimension()}
	idx, err := index.Open(ctx, cfg.Index, meta)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s index: %w", cfg.Index.Backend, err)
	}
	slog.Info("index opened", "backend", cfg.Index.Backend, "model", meta.Model, "dimension", meta.Dimension)
	return idx, nil
}

// LockPath is where the ingestion lock lives for the configured backend.
// Network backends lock next to the transcript directory.
func LockPath(cfg *config.Config) string {
	if strings.EqualFold(cfg.Index.Backend, "sqlite") || cfg.Index.Backend == "" {
		return cfg.Index.Path + ".lock"
	}
	return filepath.Join(cfg.Ingest.Dir, "."+strings.ToLower(cfg.Index.Backend)+".lock")
}

// Answerer assembles retriever and answerer from cfg.
func Answerer(ctx context.Context, cfg *config.Config, e embedding.Embedder, idx index.Index) (*rag.Answerer, error) {
	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	policy := rag.RetryPolicy{
		MaxAttempts: cfg.Generation.MaxAttempts,
		Backoff:     cfg.Generation.RetryBackoff.Duration,
	}
	retriever := rag.NewRetriever(e, idx, rag.RetrieverOptions{
		TopK:     cfg.Retrieval.TopK,
		MinScore: cfg.Retrieval.MinScore,
		Retry:    policy,
		Provider: cfg.Embedding.Provider,
	})
	return rag.NewAnswerer(retriever, client, rag.AnswererOptions{
		SystemPrompt: cfg.Prompts.System,
		TopK:         cfg.Retrieval.TopK,
		Retry:        policy,
		Timeout:      cfg.Generation.Timeout.Duration,
		Provider:     cfg.LLM.Provider,
		Model:        cfg.LLM.Model,
	}), nil
}
