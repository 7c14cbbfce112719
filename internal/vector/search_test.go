package vector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToLiteral(t *testing.T) {
	require.Equal(t, "[0.5,-1,0.25]", ToLiteral([]float32{0.5, -1, 0.25}))
	require.Equal(t, "[]", ToLiteral(nil))
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	require.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	require.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
	require.Zero(t, Cosine([]float32{0, 0}, []float32{1, 2}))
}
