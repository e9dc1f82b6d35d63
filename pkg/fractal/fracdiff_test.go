package fractal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
)

func TestGrunwaldKernel_weights(t *testing.T) {
	k := NewGrunwaldKernel(0.5, 4)
	assert.InDelta(t, 1.0, k.weights[0], 1e-12)
	assert.InDelta(t, -0.5, k.weights[1], 1e-12)
	assert.InDelta(t, -0.125, k.weights[2], 1e-12)
	assert.InDelta(t, -0.0625, k.weights[3], 1e-12)
}

func TestFractionalDerivative_orderZeroIsIdentity(t *testing.T) {
	series := floats.New(1.0, 2.5, -0.5, 3.0, 0.25, 1.75)
	for _, op := range []Operator{Caputo, RiemannLiouville, GrunwaldLetnikov} {
		t.Run(string(op), func(t *testing.T) {
			out, err := FractionalDerivative(series, 0, op, nil)
			require.NoError(t, err)
			require.Len(t, out, len(series))
			for i := range series {
				assert.InDelta(t, series[i], out[i], 1e-12)
			}
		})
	}
}

func TestFractionalDerivative_grunwaldOrderOneIsBackwardDifference(t *testing.T) {
	series := floats.New(1, 4, 9, 16, 25)
	out, err := FractionalDerivative(series, 1, GrunwaldLetnikov, &DerivativeConfig{Step: 1})
	require.NoError(t, err)

	// weights collapse to [1, -1], so each point is x[i] - x[i-1]
	assert.InDelta(t, 1.0, out[0], 1e-12)
	for i := 1; i < len(series); i++ {
		assert.InDelta(t, series[i]-series[i-1], out[i], 1e-12)
	}
}

func TestFractionalDerivative_truncationBoundsKernel(t *testing.T) {
	series := whiteNoise(500, 9)
	short, err := FractionalDerivative(series, 0.4, GrunwaldLetnikov, &DerivativeConfig{Truncation: 10})
	require.NoError(t, err)
	long, err := FractionalDerivative(series, 0.4, GrunwaldLetnikov, &DerivativeConfig{Truncation: 400})
	require.NoError(t, err)

	// early points see the same truncated history, deep points differ
	assert.InDelta(t, long[5], short[5], 1e-12)
	assert.NotEqual(t, long[499], short[499])
}

func TestFractionalDerivative_rejectsUnknownOperator(t *testing.T) {
	_, err := FractionalDerivative(floats.New(1, 2), 0.5, Operator("weyl"), nil)
	assert.Error(t, err)
}

func TestFractionalIntegral(t *testing.T) {
	// the order-1 fractional integral is a left Riemann sum
	series := floats.New(1, 1, 1, 1, 1)
	out, err := FractionalIntegral(series, 1, &DerivativeConfig{Step: 1})
	require.NoError(t, err)
	for i := 1; i < len(series); i++ {
		assert.InDelta(t, float64(i), out[i], 1e-9)
	}

	_, err = FractionalIntegral(series, -0.5, nil)
	assert.Error(t, err)
}
