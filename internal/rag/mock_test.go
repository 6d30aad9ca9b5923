package rag

import (
	"context"
	"sync"
	"testing"

	"github.com/agenthands/tuberag/internal/embedding"
	"github.com/agenthands/tuberag/internal/index"
)

type MockLLM struct {
	mu            sync.Mutex
	Response      string
	ResponseQueue []string
	ErrQueue      []error
	Err           error
	Prompts       []string
}

func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	if len(m.ErrQueue) > 0 {
		err := m.ErrQueue[0]
		m.ErrQueue = m.ErrQueue[1:]
		if err != nil {
			return "", err
		}
	}
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.ResponseQueue) > 0 {
		resp := m.ResponseQueue[0]
		m.ResponseQueue = m.ResponseQueue[1:]
		return resp, nil
	}
	return m.Response, nil
}

func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

type MockEmbedder struct {
	mu     sync.Mutex
	Vector []float32
	Errs   []error
	Dim    int
	Calls  int
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		return nil, err
	}
	return m.Vector, nil
}

func (m *MockEmbedder) Dimension() int { return m.Dim }
func (m *MockEmbedder) Model() string  { return "mock-v1" }

type failingIndex struct {
	index.Index
	err error
}

func (f failingIndex) Search(context.Context, []float32, int) ([]index.SearchResult, error) {
	return nil, f.err
}

const testDim = 64

var fastRetry = RetryPolicy{MaxAttempts: 3, Backoff: 0}

// newTestIndex embeds docs (video_id -> transcript) with the hash embedder
// into an in-memory index.
func newTestIndex(t *testing.T, docs ...[2]string) (embedding.Embedder, index.Index) {
	t.Helper()
	emb := embedding.NewHash("hash-test", testDim)
	idx := index.NewMemory(index.Meta{Model: emb.Model(), Dimension: testDim})
	records := make([]index.Record, 0, len(docs))
	for _, d := range docs {
		vec, err := emb.Embed(context.Background(), d[1])
		if err != nil {
			t.Fatalf("embed %s: %v", d[0], err)
		}
		records = append(records, index.Record{VideoID: d[0], Title: d[0], Text: d[1], Embedding: vec})
	}
	if len(records) > 0 {
		if err := idx.Upsert(context.Background(), records); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	return emb, idx
}
