package retrieval

import "math"

// CosineSimilarity computes the cosine similarity of two vectors, bounded
// in [-1, 1]. Vectors of unequal length are compared over their common
// prefix. If either vector has zero magnitude the result is 0.0; this never
// divides by zero and never fails.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}

	if na == 0 || nb == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
