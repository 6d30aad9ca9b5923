package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Hash is a deterministic bag-of-words hashing embedder. Tokens are folded
// to lower case, stop words dropped, a trailing plural "s" stripped, and each
// token adds 1 to an FNV-1a bucket. Vectors are L2-normalised.
type Hash struct {
	model string
	dim   int
}

func NewHash(model string, dim int) *Hash {
	return &Hash{model: model, dim: dim}
}

func (h *Hash) Dimension() int { return h.dim }
func (h *Hash) Model() string  { return h.model }

func (h *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, h.dim)
	if h.dim <= 0 {
		return vec, nil
	}

	for _, tok := range Tokenize(text) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		vec[int(f.Sum32()%uint32(h.dim))] += 1.0
	}

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq > 0 {
		norm := float32(1.0 / math.Sqrt(sumSq))
		for i := range vec {
			vec[i] *= norm
		}
	}
	return vec, nil
}

func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := words[:0]
	for _, w := range words {
		if stopWords[w] {
			continue
		}
		if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			w = w[:len(w)-1]
		}
		out = append(out, w)
	}
	return out
}

var stopWords = map[string]bool{
	"i": true, "me": true, "my": true, "we": true, "our": true, "you": true, "your": true,
	"he": true, "him": true, "his": true, "she": true, "her": true, "it": true, "its": true,
	"they": true, "them": true, "their": true, "what": true, "which": true, "who": true,
	"this": true, "that": true, "these": true, "those": true, "am": true, "is": true,
	"are": true, "was": true, "were": true, "be": true, "been": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "did": true, "a": true, "an": true,
	"the": true, "and": true, "but": true, "if": true, "or": true, "as": true, "of": true,
	"at": true, "by": true, "for": true, "with": true, "about": true, "into": true,
	"to": true, "from": true, "in": true, "on": true, "then": true, "so": true, "than": true,
	"how": true, "why": true, "when": true, "where": true, "can": true, "will": true,
	"just": true, "should": true, "there": true, "here": true, "not": true, "no": true,
}
