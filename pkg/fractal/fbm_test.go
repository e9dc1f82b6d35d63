package fractal

import (
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/types"
)

func TestFGNAutocovariance(t *testing.T) {
	// unit variance at lag zero for any H
	assert.InDelta(t, 1.0, FGNAutocovariance(0.3, 0), 1e-12)
	assert.InDelta(t, 1.0, FGNAutocovariance(0.7, 0), 1e-12)

	// standard Brownian increments are uncorrelated
	assert.InDelta(t, 0.0, FGNAutocovariance(0.5, 1), 1e-12)
	assert.InDelta(t, 0.0, FGNAutocovariance(0.5, 5), 1e-12)

	// persistent noise has positive lag-1 autocovariance
	assert.Greater(t, FGNAutocovariance(0.8, 1), 0.3)
	// anti-persistent noise has negative lag-1 autocovariance
	assert.Less(t, FGNAutocovariance(0.3, 1), 0.0)
}

func TestFGN_rejectsInvalidHurst(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, h := range []float64{0, 1, -0.2, 1.5} {
		_, err := FGN(h, 64, FBMDaviesHarte, rng)
		var invalid *types.InvalidParameterError
		assert.True(t, errors.As(err, &invalid), "H=%v", h)
	}
}

func TestFGN_deterministicGivenSeed(t *testing.T) {
	for _, method := range []FBMMethod{FBMCholesky, FBMDaviesHarte} {
		t.Run(string(method), func(t *testing.T) {
			a, err := FGN(0.7, 128, method, rand.New(rand.NewSource(42)))
			require.NoError(t, err)
			b, err := FGN(0.7, 128, method, rand.New(rand.NewSource(42)))
			require.NoError(t, err)
			assert.Equal(t, a, b)

			c, err := FGN(0.7, 128, method, rand.New(rand.NewSource(43)))
			require.NoError(t, err)
			assert.NotEqual(t, a, c)
		})
	}
}

func TestFGN_sampleMoments(t *testing.T) {
	// under long-range dependence a single draw has a noisy sample mean
	// (sd ~ n^(H-1) per draw), so average the moments across seeds
	const draws = 20
	var meanSum, varSum float64
	var incr floats.Slice
	for seed := uint64(1); seed <= draws; seed++ {
		rng := rand.New(rand.NewSource(seed))
		var err error
		incr, err = FGN(0.7, 4096, FBMDaviesHarte, rng)
		require.NoError(t, err)
		require.Len(t, incr, 4096)
		meanSum += incr.Mean()
		varSum += incr.Var()
	}

	assert.InDelta(t, 0.0, meanSum/draws, 0.08)
	assert.InDelta(t, 1.0, varSum/draws, 0.3)

	// positive empirical lag-1 autocorrelation for H > 0.5
	var num float64
	for i := 1; i < len(incr); i++ {
		num += incr[i] * incr[i-1]
	}
	rho := num / float64(len(incr)-1) / incr.Var()
	assert.Greater(t, rho, 0.2)
}

func TestSimulateFBM(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	path, err := SimulateFBM(0.6, 256, FBMCholesky, rng)
	require.NoError(t, err)
	require.Len(t, path, 257)
	assert.Equal(t, 0.0, path[0])
}

func TestFGN_choleskyAgreesWithTargetCovariance(t *testing.T) {
	// average the empirical lag-1 product over many short draws
	rng := rand.New(rand.NewSource(21))
	var sum float64
	const draws = 200
	const n = 32
	for i := 0; i < draws; i++ {
		incr, err := FGN(0.75, n, FBMCholesky, rng)
		require.NoError(t, err)
		for j := 1; j < n; j++ {
			sum += incr[j] * incr[j-1]
		}
	}
	empirical := sum / float64(draws*(n-1))
	assert.InDelta(t, FGNAutocovariance(0.75, 1), empirical, 0.1)
}
