// Package ranking orders candidate vectors by cosine similarity to a query.
package ranking

import (
	"math"
	"sort"
)

// Scored pairs a candidate's position in the input slice with its similarity
// to the query.
type Scored struct {
	Index int
	Score float64
}

// CosineSimilarity returns the cosine of the angle between a and b.
// A zero-magnitude side or a length mismatch scores 0, never NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank scores every candidate against the query and returns the topN best,
// highest score first. Equal scores keep candidate order, so the lower index
// wins. topN is clamped to the candidate count; topN <= 0 returns nil.
// Inputs are never mutated.
func Rank(query []float32, candidates [][]float32, topN int) []Scored {
	if topN <= 0 || len(candidates) == 0 {
		return nil
	}
	scored := make([]Scored, len(candidates))
	for i, c := range candidates {
		scored[i] = Scored{Index: i, Score: CosineSimilarity(query, c)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topN > len(scored) {
		topN = len(scored)
	}
	return scored[:topN]
}
