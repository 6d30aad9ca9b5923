package index

import (
	"context"
	"sync"
)

// Memory is an in-process index with brute-force cosine ranking.
type Memory struct {
	mu      sync.RWMutex
	meta    Meta
	records []Record
	pos     map[string]int
}

func NewMemory(meta Meta) *Memory {
	return &Memory{meta: meta, pos: make(map[string]int)}
}

func (m *Memory) Upsert(ctx context.Context, records []Record) error {
	if err := checkRecords(records, m.meta.Dimension); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range dedupe(records) {
		r.Embedding = append([]float32(nil), r.Embedding...)
		if i, ok := m.pos[r.VideoID]; ok {
			m.records[i] = r
			continue
		}
		m.pos[r.VideoID] = len(m.records)
		m.records = append(m.records, r)
	}
	return nil
}

func (m *Memory) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.pos = make(map[string]int)
	return nil
}

func (m *Memory) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}
	if err := checkQuery(query, m.meta.Dimension); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Rank(m.records, query, k), nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *Memory) Close() error { return nil }
