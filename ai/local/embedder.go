package local

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/poiesic/attestor/ai"
	"github.com/poiesic/attestor/analysis"
)

// DefaultDimensions is the vector size of the hashing embedder.
const DefaultDimensions = 256

// HashEmbedder maps text onto a fixed-size vector by hashing its index terms.
// Texts sharing terms get a positive cosine similarity.
type HashEmbedder struct {
	dim int
}

var _ ai.Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder creates an embedder producing vectors of dim dimensions.
// A non-positive dim uses DefaultDimensions.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &HashEmbedder{dim: dim}
}

// EmbedText returns the unit-length term hash vector of text.
// Text without index terms yields a zero vector.
func (e *HashEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vector := make([]float32, e.dim)
	for term, count := range analysis.TermFrequencies(text) {
		h := fnv.New64a()
		h.Write([]byte(term))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dim))
		weight := float32(1 + math.Log(float64(count)))
		if sum>>63 == 1 {
			weight = -weight
		}
		vector[bucket] += weight
	}
	normalize(vector)
	return vector, nil
}

// EmbedTexts embeds each text in order.
func (e *HashEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
}
