package copula

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/types"
)

// correlatedPair draws two standard normal margins with correlation rho.
func correlatedPair(n int, rho float64, rng *rand.Rand) []floats.Slice {
	x := make(floats.Slice, n)
	y := make(floats.Slice, n)
	c := math.Sqrt(1 - rho*rho)
	for i := 0; i < n; i++ {
		a := rng.NormFloat64()
		b := rng.NormFloat64()
		x[i] = a
		y[i] = rho*a + c*b
	}
	return []floats.Slice{x, y}
}

func TestPseudoObservations(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	series := correlatedPair(100, 0.5, rng)

	u, err := PseudoObservations(series)
	require.NoError(t, err)
	require.Len(t, u, 100)

	for _, row := range u {
		for _, v := range row {
			assert.Greater(t, v, 0.0)
			assert.Less(t, v, 1.0)
		}
	}

	_, err = PseudoObservations(series[:1])
	var invalid *types.InvalidParameterError
	assert.ErrorAs(t, err, &invalid)

	short := []floats.Slice{make(floats.Slice, 10), make(floats.Slice, 10)}
	_, err = PseudoObservations(short)
	var insufficient *types.InsufficientDataError
	assert.ErrorAs(t, err, &insufficient)
}

func TestFitGaussian_recoversCorrelation(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	series := correlatedPair(3000, 0.7, rng)

	g, err := FitGaussian(series)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Dim())
	assert.InDelta(t, 0.7, g.Corr.At(0, 1), 0.08)
	assert.InDelta(t, 1.0, g.Corr.At(0, 0), 1e-12)
}

func TestFitGaussian_degenerateMargins(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	x := make(floats.Slice, 200)
	for i := range x {
		x[i] = rng.NormFloat64()
	}

	// identical margins give an exactly singular correlation matrix, which
	// must be projected rather than rejected
	g, err := FitGaussian([]floats.Slice{x, x.Copy()})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, g.Corr.At(0, 1), 1e-6)
}

func TestGaussianSample_preservesDependence(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	series := correlatedPair(2000, 0.8, rng)
	g, err := FitGaussian(series)
	require.NoError(t, err)

	draws := g.Sample(4000, rand.New(rand.NewSource(3)))
	require.Len(t, draws, 4000)

	var mean0, mean1 float64
	u0 := make(floats.Slice, len(draws))
	u1 := make(floats.Slice, len(draws))
	for i, row := range draws {
		mean0 += row[0]
		mean1 += row[1]
		u0[i] = row[0]
		u1[i] = row[1]
	}
	mean0 /= float64(len(draws))
	mean1 /= float64(len(draws))
	assert.InDelta(t, 0.5, mean0, 0.03, "margins of a copula sample are uniform")
	assert.InDelta(t, 0.5, mean1, 0.03)

	// strong positive dependence survives the round trip
	refit, err := FitGaussian([]floats.Slice{u0, u1})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, refit.Corr.At(0, 1), 0.1)
}

func TestStudentT_tailDependence(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	series := correlatedPair(1500, 0.6, rng)

	st, err := FitStudentT(series)
	require.NoError(t, err)
	assert.Greater(t, st.Nu, 2.0)

	lambda := st.LowerTailDependence(0, 1)
	assert.Greater(t, lambda, 0.0, "t copula couples the tails")
	assert.Less(t, lambda, 1.0)

	// tail dependence grows with correlation
	hi := &StudentT{Gaussian: Gaussian{Corr: mat.NewSymDense(2, []float64{1, 0.9, 0.9, 1}), dim: 2}, Nu: 4}
	lo := &StudentT{Gaussian: Gaussian{Corr: mat.NewSymDense(2, []float64{1, 0.2, 0.2, 1}), dim: 2}, Nu: 4}
	assert.Greater(t, hi.LowerTailDependence(0, 1), lo.LowerTailDependence(0, 1))
}

func TestStudentTSample(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	series := correlatedPair(1000, 0.5, rng)
	st, err := FitStudentT(series)
	require.NoError(t, err)

	draws := st.Sample(500, rand.New(rand.NewSource(4)))
	require.Len(t, draws, 500)
	for _, row := range draws {
		for _, v := range row {
			assert.Greater(t, v, 0.0)
			assert.Less(t, v, 1.0)
		}
	}
}

func TestNearestPSD(t *testing.T) {
	// symmetric but indefinite
	m := mat.NewSymDense(3, []float64{
		1, 0.9, -0.9,
		0.9, 1, 0.9,
		-0.9, 0.9, 1,
	})

	out, err := NearestPSD(m)
	require.NoError(t, err)

	var eig mat.EigenSym
	require.True(t, eig.Factorize(out, false))
	for _, v := range eig.Values(nil) {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 1.0, out.At(i, i), 1e-9)
	}
}

func TestDCC_tracksShiftingCorrelation(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	n := 1000

	// independent halves first, strongly coupled after
	x := make(floats.Slice, n)
	y := make(floats.Slice, n)
	for i := 0; i < n; i++ {
		a := rng.NormFloat64()
		b := rng.NormFloat64()
		x[i] = a
		if i < n/2 {
			y[i] = b
		} else {
			y[i] = 0.95*a + 0.31*b
		}
	}

	d, err := NewDCC(DefaultDCCLambda, 2)
	require.NoError(t, err)
	path, err := d.Run([]floats.Slice{x, y})
	require.NoError(t, err)
	require.Len(t, path, n)

	for _, c := range path {
		assert.InDelta(t, 1.0, c.At(0, 0), 1e-12)
		assert.GreaterOrEqual(t, c.At(0, 1), -1.0)
		assert.LessOrEqual(t, c.At(0, 1), 1.0)
	}

	early := path[n/2-1].At(0, 1)
	late := path[n-1].At(0, 1)
	assert.Greater(t, late, early+0.3, "recursion should pick up the new regime")
}

func TestNewDCC_validation(t *testing.T) {
	var invalid *types.InvalidParameterError
	_, err := NewDCC(1.2, 2)
	assert.ErrorAs(t, err, &invalid)
	_, err = NewDCC(0.94, 1)
	assert.ErrorAs(t, err, &invalid)
}
