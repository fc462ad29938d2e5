// Package vector provides vector similarity calculations.
package vector

import (
	"math"
	"sort"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched or zero-length vectors get -1, the minimum.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Scored is an item with its similarity to a query.
type Scored[T any] struct {
	Item       T
	Similarity float64
}

// TopK scores every candidate against query and returns the k most similar,
// ordered by descending similarity. Ties keep candidate order.
func TopK[T any](query []float32, candidates []T, embedding func(T) []float32, k int) []Scored[T] {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	scored := make([]Scored[T], len(candidates))
	for i, c := range candidates {
		scored[i] = Scored[T]{Item: c, Similarity: CosineSimilarity(query, embedding(c))}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
