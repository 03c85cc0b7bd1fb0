package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashClient is a local, dependency-free embedder based on signed feature hashing of
// lower-cased word unigrams and bigrams. Vectors are L2-normalised, so the dot product of
// two vectors is their cosine similarity.
type HashClient struct {
	dim int
}

// NewHashClient creates a HashClient producing vectors of the given dimension.
func NewHashClient(dim int) *HashClient {
	if dim <= 0 {
		dim = 384
	}
	return &HashClient{dim: dim}
}

func (h *HashClient) Dimension() int    { return h.dim }
func (h *HashClient) ModelName() string { return "feature-hash" }

// CreateEmbedding never fails; empty input maps to the zero vector.
func (h *HashClient) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

func (h *HashClient) add(vec []float32, feature string, weight float32) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
