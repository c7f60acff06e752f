package analysis

import "math"

// CosineSimilarity computes the cosine similarity between two embedding
// vectors. Returns 0 for empty, mismatched-length or zero-magnitude inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineDistance is 1 - cosine similarity, the metric used for clustering
// and for matching new signatures against stored centroids.
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

// Centroid returns the mean vector of the given embeddings.
// Returns nil for empty input.
func Centroid(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}

	dim := len(vecs[0])
	sum := make([]float64, dim)
	for _, v := range vecs {
		for i := 0; i < dim && i < len(v); i++ {
			sum[i] += float64(v[i])
		}
	}

	centroid := make([]float32, dim)
	n := float64(len(vecs))
	for i := range sum {
		centroid[i] = float32(sum[i] / n)
	}
	return centroid
}
