package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{2, 0}
	c := []float32{-1, 0}
	d := []float32{0, 1}

	assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity(a, c), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity(a, d), 1e-9)

	assert.Equal(t, -1.0, CosineSimilarity(a, []float32{1, 0, 0}))
	assert.Equal(t, -1.0, CosineSimilarity([]float32{0, 0}, a))
}

func TestTopK(t *testing.T) {
	type chunk struct {
		id  string
		vec []float32
	}
	chunks := []chunk{
		{"far", []float32{-1, 0}},
		{"close", []float32{1, 0.1}},
		{"exact", []float32{1, 0}},
		{"orthogonal", []float32{0, 1}},
	}

	got := TopK([]float32{1, 0}, chunks, func(c chunk) []float32 { return c.vec }, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "exact", got[0].Item.id)
	assert.Equal(t, "close", got[1].Item.id)
	assert.Equal(t, "orthogonal", got[2].Item.id)
	assert.GreaterOrEqual(t, got[0].Similarity, got[1].Similarity)

	assert.Nil(t, TopK([]float32{1, 0}, chunks, func(c chunk) []float32 { return c.vec }, 0))
	assert.Nil(t, TopK([]float32{1, 0}, []chunk{}, func(c chunk) []float32 { return c.vec }, 5))
}
