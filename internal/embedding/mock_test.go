package embedding

import (
	"context"
	"errors"
)

type MockEmbedder struct {
	Vector []float32
	Err    error
	Dim    int
	Calls  int
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vector, nil
}

func (m *MockEmbedder) Dimension() int { return m.Dim }
func (m *MockEmbedder) Model() string  { return "mock-v1" }

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]float32, bool, error) {
	return nil, false, errors.New("cache down")
}

func (failingCache) Set(context.Context, string, []float32) error {
	return errors.New("cache down")
}
