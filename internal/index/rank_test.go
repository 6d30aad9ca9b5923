package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 0}))
}

func TestRank_CapsAtK(t *testing.T) {
	candidates := []Record{rec("a", 1, 0, 0), rec("b", 0, 1, 0)}
	assert.Len(t, Rank(candidates, []float32{1, 0, 0}, 10), 2)
	assert.Len(t, Rank(candidates, []float32{1, 0, 0}, 1), 1)
	assert.Empty(t, Rank(nil, []float32{1, 0, 0}, 3))
}

func TestRank_ZeroQueryRanksNothing(t *testing.T) {
	candidates := []Record{rec("a", 1, 0, 0), rec("b", 0, 1, 0), rec("c", 0, 0, 1)}
	res := Rank(candidates, []float32{0, 0, 0}, 3)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestRank_SkipsZeroNormCandidates(t *testing.T) {
	candidates := []Record{rec("blank", 0, 0, 0), rec("a", 1, 0, 0), rec("b", 0, 1, 0)}
	res := Rank(candidates, []float32{1, 0, 0}, 3)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].VideoID)
	assert.Equal(t, "b", res[1].VideoID)
}

func TestScore(t *testing.T) {
	assert.Nil(t, Score(math.NaN()))
	assert.Nil(t, Score(math.Inf(1)))
	require.NotNil(t, Score(0.5))
	assert.Equal(t, 0.5, *Score(0.5))
}

func TestDedupe_LastWinsAtFirstPosition(t *testing.T) {
	a1 := rec("a", 1, 0, 0)
	a2 := rec("a", 0, 1, 0)
	out := dedupe([]Record{a1, rec("b", 0, 0, 1), a2})
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].VideoID)
	assert.Equal(t, a2.Embedding, out[0].Embedding)
}
