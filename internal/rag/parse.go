package rag

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON extracts the outermost JSON object from an LLM reply, tolerating
// markdown fences or prose around it, and decodes it strictly into T.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start == -1 {
		return zero, fmt.Errorf("no JSON object found in response (missing '{')")
	}
	if end < start {
		return zero, fmt.Errorf("no JSON object found in response (missing '}')")
	}
	jsonStr := response[start : end+1]

	dec := json.NewDecoder(bytes.NewReader([]byte(jsonStr)))
	dec.DisallowUnknownFields()

	var result T
	if err := dec.Decode(&result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if dec.More() {
		return zero, fmt.Errorf("trailing data after JSON object")
	}

	return result, nil
}

type generatedSource struct {
	VideoID string   `json:"video_id"`
	Title   string   `json:"title"`
	Score   *float64 `json:"score"`
}

type generatedAnswer struct {
	Answer  *string            `json:"answer"`
	Sources *[]generatedSource `json:"sources"`
}

// parseAnswer validates a model reply against the evidence it was given.
// Sources are rebuilt from the evidence in retrieval order, so titles and
// scores never come from the model. A reply citing nothing is a decline.
func parseAnswer(raw string, ev Evidence) (*Response, error) {
	g, err := ParseJSON[generatedAnswer](raw)
	if err != nil {
		return nil, err
	}
	if g.Answer == nil {
		return nil, fmt.Errorf("missing field \"answer\"")
	}
	if g.Sources == nil {
		return nil, fmt.Errorf("missing field \"sources\"")
	}
	answer := strings.TrimSpace(*g.Answer)
	if answer == "" {
		return nil, fmt.Errorf("empty answer")
	}

	used := make([]bool, ev.Len())
	for _, src := range *g.Sources {
		id := strings.TrimSpace(src.VideoID)
		if id == "" {
			return nil, fmt.Errorf("source without video_id")
		}
		i, ok := ev.lookup(id)
		if !ok {
			return nil, fmt.Errorf("source %q was not in the retrieved evidence", id)
		}
		used[i] = true
	}

	sources := make([]Source, 0, len(used))
	for i, r := range ev.results {
		if used[i] {
			sources = append(sources, sourceOf(r))
		}
	}
	if len(sources) == 0 {
		return Decline(), nil
	}
	return &Response{Answer: answer, Sources: sources}, nil
}
