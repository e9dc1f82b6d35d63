package sde

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/crashradar/crashradar/pkg/copula"
	"github.com/crashradar/crashradar/pkg/types"
)

func basketAssets() []Params {
	return []Params{
		{S0: 100, Drift: 0.05, Vol: 0.2},
		{S0: 50, Drift: 0.02, Vol: 0.3},
	}
}

func basketConfig() Config {
	cfg := DefaultConfig()
	cfg.Paths = 1500
	cfg.Steps = 60
	cfg.Seed = 11
	return cfg
}

func TestSimulateBasket_copulaCorrelatesTerminals(t *testing.T) {
	cop, err := copula.NewGaussian(mat.NewSymDense(2, []float64{1, 0.9, 0.9, 1}))
	require.NoError(t, err)

	cfg := basketConfig()
	ensembles, err := SimulateBasket(context.Background(), basketAssets(), cop, cfg)
	require.NoError(t, err)
	require.Len(t, ensembles, 2)
	require.Len(t, ensembles[0].Paths, cfg.Paths)

	rho := stat.Correlation(ensembles[0].TerminalReturns(), ensembles[1].TerminalReturns(), nil)
	assert.Greater(t, rho, 0.5, "strongly coupled shocks must show up in the terminals")

	indep, err := copula.NewGaussian(mat.NewSymDense(2, []float64{1, 0, 0, 1}))
	require.NoError(t, err)
	ensembles, err = SimulateBasket(context.Background(), basketAssets(), indep, cfg)
	require.NoError(t, err)
	rho = stat.Correlation(ensembles[0].TerminalReturns(), ensembles[1].TerminalReturns(), nil)
	assert.InDelta(t, 0.0, rho, 0.15)
}

func TestSimulateBasket_deterministicForSeed(t *testing.T) {
	cop, err := copula.NewGaussian(mat.NewSymDense(2, []float64{1, 0.5, 0.5, 1}))
	require.NoError(t, err)

	cfg := basketConfig()
	cfg.Paths = 50

	first, err := SimulateBasket(context.Background(), basketAssets(), cop, cfg)
	require.NoError(t, err)
	cfg.Workers = 8
	second, err := SimulateBasket(context.Background(), basketAssets(), cop, cfg)
	require.NoError(t, err)

	for j := range first {
		for i := range first[j].Paths {
			assert.Equal(t, first[j].Paths[i], second[j].Paths[i])
		}
	}
}

func TestSimulateBasket_validation(t *testing.T) {
	var invalid *types.InvalidParameterError

	cop, err := copula.NewGaussian(mat.NewSymDense(2, []float64{1, 0.5, 0.5, 1}))
	require.NoError(t, err)
	cfg := basketConfig()

	_, err = SimulateBasket(context.Background(), basketAssets()[:1], cop, cfg)
	assert.ErrorAs(t, err, &invalid, "dimension mismatch")

	_, err = SimulateBasket(context.Background(), basketAssets(), nil, cfg)
	assert.ErrorAs(t, err, &invalid, "missing shock source")

	fractional := basketAssets()
	fractional[0].Hurst = 0.7
	_, err = SimulateBasket(context.Background(), fractional, cop, cfg)
	assert.ErrorAs(t, err, &invalid, "fractional noise cannot be copula-correlated")
}
