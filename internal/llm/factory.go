package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agenthands/tuberag/internal/config"
)

// NewClient builds the generation client for the configured provider.
func NewClient(ctx context.Context, cfg config.LLMConfig) (LLMClient, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model, "", cfg.BaseURL).WithMaxTokens(cfg.MaxTokens), nil

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model, "")
		if err != nil {
			return nil, err
		}
		return c.WithMaxTokens(cfg.MaxTokens), nil

	case "claude":
		return NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL).WithMaxTokens(cfg.MaxTokens), nil

	case "ollama":
		baseURL := ollamaBaseURL(cfg.BaseURL)
		slog.Info("initializing ollama via OpenAI-compatible API", "base_url", baseURL)
		return NewOpenAIClient(ollamaKey(cfg.APIKey), cfg.Model, "", baseURL).WithMaxTokens(cfg.MaxTokens), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}

// NewEmbedderClient builds the remote embedding client for the configured
// provider. Claude has no embeddings API and is rejected.
func NewEmbedderClient(ctx context.Context, cfg config.EmbeddingConfig) (EmbedderClient, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, "", cfg.Model, cfg.BaseURL).WithDimensions(cfg.Dimension), nil

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, "", cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil

	case "ollama":
		return NewOpenAIClient(ollamaKey(cfg.APIKey), "", cfg.Model, ollamaBaseURL(cfg.BaseURL)), nil

	case "claude":
		return nil, fmt.Errorf("embeddings not supported by provider: %s", provider)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}

func ollamaBaseURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL = fmt.Sprintf("%s/v1", strings.TrimRight(baseURL, "/"))
	}
	return baseURL
}

// Ollama ignores the key but the OpenAI client requires one.
func ollamaKey(apiKey string) string {
	if apiKey == "" {
		return "ollama"
	}
	return apiKey
}
