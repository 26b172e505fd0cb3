package cache

import (
	"hash/fnv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// HashEmbedding maps text to a fixed-dimension unit vector by hashing
// lowercased tokens into buckets. It is not a semantic embedding, but texts
// sharing most of their tokens land close together under cosine similarity,
// which is enough to drive FindSimilar without an external model.
func HashEmbedding(text string, dims int) []float64 {
	if dims <= 0 {
		return nil
	}
	vec := make([]float64, dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%dims]++
	}
	norm := floats.Norm(vec, 2)
	if norm == 0 {
		return vec
	}
	floats.Scale(1/norm, vec)
	return vec
}
