package reembed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVector(t *testing.T) {
	got, err := NormalizeVector([]float32{3, 4})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, got, 1e-6)

	got, err = NormalizeVector([]float32{-2, 0, 0})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{-1, 0, 0}, got, 1e-6)

	in := []float32{1, 2, 2}
	got, err = NormalizeVector(in)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 2}, in, "input is not modified")

	var sum float64
	for _, x := range got {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestNormalizeVector_Degenerate(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	for name, v := range map[string][]float32{
		"nil":      nil,
		"empty":    {},
		"zero":     {0, 0, 0},
		"nan":      {1, nan},
		"infinity": {inf, 1},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := NormalizeVector(v)
			assert.ErrorIs(t, err, ErrDegenerateVector)
			assert.Nil(t, got)
		})
	}
}
