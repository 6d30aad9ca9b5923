// Package index stores transcript records with their embeddings and answers
// nearest-neighbour queries.
//
// Scores are cosine similarity: higher is better, range [-1, 1]. Backends
// that rank by distance convert before returning. A nil Score means the
// backend could not produce a comparable value for that result.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/agenthands/tuberag/internal/embedding"
)

// TableName is the fixed name of the record table in every backend.
const TableName = "transcripts"

var (
	// ErrDimensionMismatch rejects a vector whose length differs from the
	// index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrSchemaMismatch is returned at open time when the stored
	// dimension/model differ from the configured embedder.
	ErrSchemaMismatch = errors.New("index schema mismatch")
)

type Record struct {
	VideoID   string    `json:"video_id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
}

type SearchResult struct {
	VideoID string   `json:"video_id"`
	Title   string   `json:"title"`
	Text    string   `json:"text"`
	Score   *float64 `json:"score"`
}

// Index is safe for concurrent Search calls. Writes are expected from a
// single exclusive writer.
type Index interface {
	// Upsert inserts records, replacing any existing record with the same
	// VideoID. The whole batch is rejected if any embedding has the wrong
	// dimension.
	Upsert(ctx context.Context, records []Record) error
	DeleteAll(ctx context.Context) error
	// Search returns at most k results, best first. k <= 0 or an empty
	// index yields an empty slice and no error.
	Search(ctx context.Context, query []float32, k int) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Meta identifies the embedding space an index was built with.
type Meta struct {
	Model     string
	Dimension int
}

func (m Meta) check(stored Meta) error {
	if stored.Dimension != m.Dimension || stored.Model != m.Model {
		return fmt.Errorf("%w: index has model %q dimension %d, embedder has model %q dimension %d",
			ErrSchemaMismatch, stored.Model, stored.Dimension, m.Model, m.Dimension)
	}
	return nil
}

func checkRecords(records []Record, dim int) error {
	for _, r := range records {
		if r.VideoID == "" {
			return errors.New("record has empty video_id")
		}
		if len(r.Embedding) != dim {
			return fmt.Errorf("%w: record %s has dimension %d, want %d", ErrDimensionMismatch, r.VideoID, len(r.Embedding), dim)
		}
		if strings.ContainsFunc(r.VideoID, unicode.IsSpace) {
			return fmt.Errorf("record %q: video_id must not contain whitespace", r.VideoID)
		}
		if norm(r.Embedding) == 0 {
			return fmt.Errorf("record %s: %w", r.VideoID, embedding.ErrZeroVector)
		}
	}
	return nil
}

func checkQuery(query []float32, dim int) error {
	if len(query) != dim {
		return fmt.Errorf("%w: query has dimension %d, want %d", ErrDimensionMismatch, len(query), dim)
	}
	return nil
}

// dedupe keeps the last record for each VideoID, at the position of its
// first occurrence.
func dedupe(records []Record) []Record {
	pos := make(map[string]int, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if i, ok := pos[r.VideoID]; ok {
			out[i] = r
			continue
		}
		pos[r.VideoID] = len(out)
		out = append(out, r)
	}
	return out
}
