package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sethvargo/go-retry"

	"github.com/agenthands/tuberag/internal/embedding"
	"github.com/agenthands/tuberag/internal/index"
	"github.com/agenthands/tuberag/internal/llm"
)

const DefaultTopK = 3

type RetrieverOptions struct {
	TopK int
	// MinScore drops results scoring below it when > 0. A result with a
	// similarity of zero or less is never evidence; results without a score
	// are kept.
	MinScore float64
	Retry    RetryPolicy
	Provider string
}

// Retriever embeds a query and turns the nearest transcripts into Evidence.
// It never writes to the index.
type Retriever struct {
	embedder embedding.Embedder
	index    index.Index
	opts     RetrieverOptions
}

func NewRetriever(e embedding.Embedder, idx index.Index, opts RetrieverOptions) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Retriever{
		embedder: embedding.Validate(e),
		index:    idx,
		opts:     opts,
	}
}

// Retrieve returns up to k blocks for query; k <= 0 uses the configured
// default. An empty result is a valid Evidence whose Found is false.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (Evidence, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Evidence{}, &Error{Kind: KindInvalidRequest, Message: "query is empty"}
	}
	if k <= 0 {
		k = r.opts.TopK
	}

	vec, err := r.embed(ctx, query)
	if errors.Is(err, embedding.ErrZeroVector) {
		// Nothing in the query carries meaning, so nothing can match it.
		slog.DebugContext(ctx, "query has no content terms", "request_id", RequestID(ctx))
		return Evidence{query: query, results: []index.SearchResult{}, retrieved: true}, nil
	}
	if err != nil {
		return Evidence{}, err
	}

	results, err := r.index.Search(ctx, vec, k)
	if err != nil {
		if errors.Is(err, index.ErrSchemaMismatch) {
			return Evidence{}, &Error{Kind: KindIndexSchemaMismatch, Message: "index does not match the embedder", Err: err}
		}
		if errors.Is(err, index.ErrDimensionMismatch) {
			return Evidence{}, &Error{Kind: KindEmbeddingFailure, Message: "query embedding does not match the index", Model: r.embedder.Model(), Provider: r.opts.Provider, Err: err}
		}
		return Evidence{}, &Error{Kind: KindInternal, Message: "index search failed", Err: err}
	}

	kept := results[:0]
	for _, res := range results {
		if r.relevant(res) {
			kept = append(kept, res)
		}
	}
	results = kept

	slog.DebugContext(ctx, "retrieved evidence",
		"request_id", RequestID(ctx),
		"k", k,
		"results", len(results),
	)

	return Evidence{query: query, results: results, retrieved: true}, nil
}

func (r *Retriever) relevant(res index.SearchResult) bool {
	if res.Score == nil {
		return true
	}
	return *res.Score > 0 && *res.Score >= r.opts.MinScore
}

func (r *Retriever) embed(ctx context.Context, query string) ([]float32, error) {
	var vec []float32
	var last error
	attempts := 0

	err := r.opts.Retry.do(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		v, err := r.embedder.Embed(ctx, query)
		if err == nil {
			vec = v
			return nil
		}
		last = err
		if errors.Is(err, embedding.ErrInvalidVector) || ctx.Err() != nil {
			return err
		}
		slog.WarnContext(ctx, "query embedding failed",
			"request_id", RequestID(ctx),
			"attempt", attempt,
			"error", err,
		)
		return retry.RetryableError(err)
	})
	if err == nil {
		return vec, nil
	}
	if last == nil {
		last = err
	}
	if errors.Is(last, embedding.ErrZeroVector) {
		return nil, last
	}
	if errors.Is(last, context.Canceled) {
		return nil, &Error{Kind: KindInternal, Message: "request canceled", Err: last}
	}
	return nil, &Error{
		Kind:     KindEmbeddingFailure,
		Message:  "failed to embed query",
		Provider: r.opts.Provider,
		Model:    r.embedder.Model(),
		Status:   llm.UpstreamStatus(last),
		Timeout:  llm.IsTimeout(last),
		Attempts: attempts,
		Err:      last,
	}
}
