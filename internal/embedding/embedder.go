package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/agenthands/tuberag/internal/config"
	"github.com/agenthands/tuberag/internal/llm"
)

// ErrInvalidVector marks a vector that is empty, has the wrong length or
// holds non-finite values. It is never retried.
var ErrInvalidVector = errors.New("invalid embedding vector")

// ErrZeroVector is the ErrInvalidVector returned for a vector with zero
// norm, e.g. the hash embedding of text made only of stop words. It has no
// direction, so it cannot be similar to anything.
var ErrZeroVector = fmt.Errorf("%w: zero-norm vector", ErrInvalidVector)

// Embedder maps text into a fixed-dimension vector space. Ingestion and
// serving must use embedders reporting the same Model and Dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

// Remote adapts a provider client to Embedder with a declared model/dimension.
type Remote struct {
	client llm.EmbedderClient
	model  string
	dim    int
}

func NewRemote(client llm.EmbedderClient, model string, dim int) *Remote {
	return &Remote{client: client, model: model, dim: dim}
}

func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	return r.client.Embed(ctx, text)
}

func (r *Remote) Dimension() int { return r.dim }
func (r *Remote) Model() string  { return r.model }

type validating struct {
	Embedder
}

// Validate wraps e so that every returned vector is checked against
// e.Dimension(). There is no zero-vector fallback.
func Validate(e Embedder) Embedder {
	if _, ok := e.(validating); ok {
		return e
	}
	return validating{e}
}

func (v validating) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := v.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := CheckVector(vec, v.Dimension()); err != nil {
		return nil, fmt.Errorf("model %s: %w", v.Model(), err)
	}
	return vec, nil
}

func CheckVector(vec []float32, dim int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidVector)
	}
	if len(vec) != dim {
		return fmt.Errorf("%w: got dimension %d, want %d", ErrInvalidVector, len(vec), dim)
	}
	var sumSq float64
	for i, x := range vec {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at %d", ErrInvalidVector, i)
		}
		sumSq += f * f
	}
	if sumSq == 0 {
		return ErrZeroVector
	}
	return nil
}

// New builds the configured embedder, already wrapped by Validate.
func New(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "hash":
		return Validate(NewHash(cfg.Model, cfg.Dimension)), nil
	default:
		client, err := llm.NewEmbedderClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return Validate(NewRemote(client, cfg.Model, cfg.Dimension)), nil
	}
}
