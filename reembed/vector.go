package reembed

import (
	"fmt"
	"math"
)

// NormalizeVector scales v to unit length so stored vectors can be compared
// with a plain dot product. Empty, all-zero and non-finite vectors have no
// direction and are rejected with ErrDegenerateVector.
func NormalizeVector(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrDegenerateVector)
	}

	var sum float64
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite component at %d", ErrDegenerateVector, i)
		}
		sum += f * f
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: zero magnitude", ErrDegenerateVector)
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}
