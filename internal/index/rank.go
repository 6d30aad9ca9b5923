package index

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b, or 0 when either has
// zero norm.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func norm(v []float32) float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	return math.Sqrt(sumSq)
}

// Rank scores candidates against query and returns the best k, keeping
// candidate order among equal scores. A zero-norm query or candidate has no
// direction: the query ranks nothing and such candidates are left out.
func Rank(candidates []Record, query []float32, k int) []SearchResult {
	if k <= 0 || len(candidates) == 0 || norm(query) == 0 {
		return []SearchResult{}
	}

	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, 0, len(candidates))
	for i, c := range candidates {
		if norm(c.Embedding) == 0 {
			continue
		}
		scores = append(scores, scored{i: i, score: Cosine(query, c.Embedding)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if k > len(scores) {
		k = len(scores)
	}
	out := make([]SearchResult, 0, k)
	for _, s := range scores[:k] {
		c := candidates[s.i]
		out = append(out, SearchResult{
			VideoID: c.VideoID,
			Title:   c.Title,
			Text:    c.Text,
			Score:   Score(s.score),
		})
	}
	return out
}

// Score boxes a similarity, mapping NaN to nil (unavailable).
func Score(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
