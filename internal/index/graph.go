package index

import (
	"context"
	"fmt"
	"time"

	"github.com/agenthands/tuberag/internal/driver"
)

// Graph stores transcripts as (:Transcript) nodes in Memgraph. Ranking is
// done in process because vector search needs the MAGE modules.
type Graph struct {
	driver driver.GraphDriver
	meta   Meta
	now    func() time.Time
}

func OpenGraph(ctx context.Context, d driver.GraphDriver, meta Meta) (*Graph, error) {
	if err := d.BuildIndices(ctx); err != nil {
		return nil, err
	}

	res, err := d.ExecuteQuery(ctx, driver.EnsureIndexMetaQuery, map[string]interface{}{
		"table":     TableName,
		"dimension": int64(meta.Dimension),
		"model":     meta.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read index metadata: %w", err)
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("failed to read index metadata: no rows")
	}

	var stored Meta
	if v, ok := res.Records[0].Get("dimension"); ok {
		if n, ok := v.(int64); ok {
			stored.Dimension = int(n)
		}
	}
	if v, ok := res.Records[0].Get("model"); ok {
		stored.Model, _ = v.(string)
	}
	if err := meta.check(stored); err != nil {
		return nil, err
	}

	return &Graph{driver: d, meta: meta, now: time.Now}, nil
}

func (g *Graph) Upsert(ctx context.Context, records []Record) error {
	if err := checkRecords(records, g.meta.Dimension); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	base := g.now().UnixNano()
	rows := make([]interface{}, 0, len(records))
	for i, r := range dedupe(records) {
		emb := make([]float64, len(r.Embedding))
		for j, v := range r.Embedding {
			emb[j] = float64(v)
		}
		rows = append(rows, map[string]interface{}{
			"video_id":  r.VideoID,
			"title":     r.Title,
			"text":      r.Text,
			"embedding": emb,
			"seq":       base + int64(i),
		})
	}

	if _, err := g.driver.ExecuteQuery(ctx, driver.UpsertTranscriptsQuery, map[string]interface{}{"rows": rows}); err != nil {
		return fmt.Errorf("failed to upsert transcripts: %w", err)
	}
	return nil
}

func (g *Graph) DeleteAll(ctx context.Context) error {
	if _, err := g.driver.ExecuteQuery(ctx, driver.DeleteAllTranscriptsQuery, nil); err != nil {
		return fmt.Errorf("failed to clear transcripts: %w", err)
	}
	return nil
}

func (g *Graph) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}
	if err := checkQuery(query, g.meta.Dimension); err != nil {
		return nil, err
	}

	res, err := g.driver.ExecuteQuery(ctx, driver.ListTranscriptsQuery, nil)
	if err != nil {
		return nil, err
	}

	candidates := make([]Record, 0, len(res.Records))
	for _, rec := range res.Records {
		var r Record
		if v, ok := rec.Get("video_id"); ok {
			r.VideoID, _ = v.(string)
		}
		if v, ok := rec.Get("title"); ok {
			r.Title, _ = v.(string)
		}
		if v, ok := rec.Get("text"); ok {
			r.Text, _ = v.(string)
		}
		raw, _ := rec.Get("embedding")
		vec, err := toFloat32s(raw)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.VideoID, err)
		}
		if len(vec) != g.meta.Dimension {
			return nil, fmt.Errorf("%w: stored record %s has dimension %d", ErrSchemaMismatch, r.VideoID, len(vec))
		}
		r.Embedding = vec
		candidates = append(candidates, r)
	}

	return Rank(candidates, query, k), nil
}

func (g *Graph) Count(ctx context.Context) (int, error) {
	res, err := g.driver.ExecuteQuery(ctx, driver.CountTranscriptsQuery, nil)
	if err != nil {
		return 0, err
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	v, _ := res.Records[0].Get("n")
	n, _ := v.(int64)
	return int(n), nil
}

func (g *Graph) Close() error {
	return g.driver.Close(context.Background())
}

func toFloat32s(v interface{}) ([]float32, error) {
	switch vals := v.(type) {
	case []float32:
		return vals, nil
	case []float64:
		out := make([]float32, len(vals))
		for i, x := range vals {
			out[i] = float32(x)
		}
		return out, nil
	case []interface{}:
		out := make([]float32, len(vals))
		for i, x := range vals {
			f, ok := x.(float64)
			if !ok {
				return nil, fmt.Errorf("embedding element %d has type %T", i, x)
			}
			out[i] = float32(f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("embedding has type %T", v)
	}
}
