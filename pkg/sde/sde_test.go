package sde

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/lppl"
	"github.com/crashradar/crashradar/pkg/types"
)

func gbmParams() Params {
	return Params{S0: 100, Drift: 0.05, Vol: 0.2}
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Paths = 200
	cfg.Steps = 252
	cfg.Seed = 99
	return cfg
}

func TestSimulate_deterministicAcrossWorkerCounts(t *testing.T) {
	params := gbmParams()

	var ensembles []*Ensemble
	for _, workers := range []int{1, 4, 16} {
		cfg := smallConfig()
		cfg.Workers = workers
		e, err := Simulate(context.Background(), params, cfg)
		require.NoError(t, err)
		ensembles = append(ensembles, e)
	}

	for w := 1; w < len(ensembles); w++ {
		for i := range ensembles[0].Paths {
			assert.Equal(t, ensembles[0].Paths[i], ensembles[w].Paths[i],
				"path %d must be bit-identical regardless of worker count", i)
		}
	}
}

func TestSimulate_gbmTerminalMean(t *testing.T) {
	cfg := smallConfig()
	cfg.Paths = 2000

	e, err := Simulate(context.Background(), gbmParams(), cfg)
	require.NoError(t, err)

	want := 100 * math.Exp(0.05)
	assert.InDelta(t, want, e.Terminal().Mean(), 3.0)
}

func TestSimulate_milsteinStaysPositive(t *testing.T) {
	cfg := smallConfig()
	cfg.Integrator = Milstein

	params := gbmParams()
	params.Vol = 0.6

	e, err := Simulate(context.Background(), params, cfg)
	require.NoError(t, err)
	for _, path := range e.Paths {
		for _, v := range path {
			assert.Greater(t, v, 0.0)
		}
	}
}

func TestSimulate_mertonJumpsDragTerminalDown(t *testing.T) {
	cfg := smallConfig()
	cfg.Paths = 1500

	plain, err := Simulate(context.Background(), gbmParams(), cfg)
	require.NoError(t, err)

	jumped := gbmParams()
	jumped.Jump = JumpParams{Model: JumpMerton, Intensity: 5, Mean: -0.04, Std: 0.01}
	crashy, err := Simulate(context.Background(), jumped, cfg)
	require.NoError(t, err)

	assert.Less(t, crashy.Terminal().Mean(), plain.Terminal().Mean())
}

func TestSimulate_regimeSwitchingUsesStateVols(t *testing.T) {
	params := gbmParams()
	params.Regime = &RegimeSwitch{
		Transition: [][]float64{{0.98, 0.02}, {0.05, 0.95}},
		Drift:      []float64{0.08, -0.30},
		Vol:        []float64{0.12, 0.45},
	}

	cfg := smallConfig()
	e, err := Simulate(context.Background(), params, cfg)
	require.NoError(t, err)
	require.Len(t, e.Paths, cfg.Paths)

	// crisis visits widen the terminal distribution well past the calm vol
	rets := e.TerminalReturns()
	assert.Greater(t, rets.Std(), 0.12)
}

func TestSimulate_fractionalStepScaling(t *testing.T) {
	params := Params{S0: 100, Vol: 1, Hurst: 0.8}

	cfg := DefaultConfig()
	cfg.Paths = 4000
	cfg.Steps = 1
	cfg.Dt = 0.01
	cfg.Seed = 7

	e, err := Simulate(context.Background(), params, cfg)
	require.NoError(t, err)

	// one step of dS = S dW^H moves by noise * dt^H, not sqrt(dt)
	rel := make(floats.Slice, len(e.Paths))
	for i, p := range e.Paths {
		rel[i] = p.Last()/100 - 1
	}
	want := math.Pow(cfg.Dt, 0.8)
	assert.InDelta(t, want, rel.Std(), 0.1*want)
	assert.Greater(t, math.Sqrt(cfg.Dt), 2*rel.Std(), "sqrt(dt) scaling would be four times larger")
}

func TestSimulate_bubbleDriftAccelerates(t *testing.T) {
	fit := &lppl.Fit{A: 5, B: -0.05, C: 0, M: 0.5, Omega: 7, Tc: 400}

	cfg := smallConfig()
	cfg.Dt = 1 // fit time is in samples
	cfg.Steps = 200
	cfg.Paths = 300

	base := Params{S0: 100, Drift: 0, Vol: 0.01}
	plain, err := Simulate(context.Background(), base, cfg)
	require.NoError(t, err)

	base.Bubble = fit
	bubbly, err := Simulate(context.Background(), base, cfg)
	require.NoError(t, err)

	assert.Greater(t, bubbly.Terminal().Mean(), plain.Terminal().Mean())
}

func TestBubbleDrift_cappedNearCriticalTime(t *testing.T) {
	fit := &lppl.Fit{A: 5, B: -2, M: 0.3, Tc: 100}
	d := bubbleDrift(fit, 99.9, 0.05)
	assert.LessOrEqual(t, math.Abs(d), bubbleDriftCap)
}

func TestSimulate_validation(t *testing.T) {
	var invalid *types.InvalidParameterError

	p := gbmParams()
	p.S0 = -1
	_, err := Simulate(context.Background(), p, smallConfig())
	assert.ErrorAs(t, err, &invalid)

	p = gbmParams()
	p.Jump = JumpParams{Model: "levy"}
	_, err = Simulate(context.Background(), p, smallConfig())
	assert.ErrorAs(t, err, &invalid)

	p = gbmParams()
	p.Regime = &RegimeSwitch{
		Transition: [][]float64{{0.5, 0.4}, {0.5, 0.5}},
		Drift:      []float64{0, 0},
		Vol:        []float64{0.1, 0.1},
	}
	_, err = Simulate(context.Background(), p, smallConfig())
	assert.ErrorAs(t, err, &invalid, "rows must sum to one")

	cfg := smallConfig()
	cfg.Paths = 0
	_, err = Simulate(context.Background(), gbmParams(), cfg)
	assert.ErrorAs(t, err, &invalid)
}

func TestSimulateOU_revertsToTheta(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	p := OUParams{X0: 10, Theta: 2, Kappa: 3, Sigma: 0.2}

	path, err := SimulateOU(p, 5000, 0.01, rng)
	require.NoError(t, err)
	require.Len(t, path, 5001)

	tail := path.Tail(2000)
	assert.InDelta(t, 2.0, tail.Mean(), 0.1)

	_, err = SimulateOU(OUParams{Kappa: -1}, 10, 0.01, rng)
	var invalid *types.InvalidParameterError
	assert.ErrorAs(t, err, &invalid)
}

func TestDetectJumps(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	returns := make(floats.Slice, 500)
	for i := range returns {
		returns[i] = 0.01 * rng.NormFloat64()
	}
	returns[100] = -0.15
	returns[300] = 0.12

	idx, err := DetectJumps(returns, DefaultJumpThreshold)
	require.NoError(t, err)
	assert.Contains(t, idx, 100)
	assert.Contains(t, idx, 300)
	assert.LessOrEqual(t, len(idx), 6, "threshold should flag few ordinary moves")

	_, err = DetectJumps(returns[:10], DefaultJumpThreshold)
	var insufficient *types.InsufficientDataError
	assert.ErrorAs(t, err, &insufficient)
}

func TestEstimateMerton(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	returns := make(floats.Slice, 1000)
	for i := range returns {
		returns[i] = 0.01 * rng.NormFloat64()
	}
	for _, j := range []int{50, 250, 450, 650, 850} {
		returns[j] = -0.10
	}

	p, err := EstimateMerton(returns, 1.0/252, DefaultJumpThreshold)
	require.NoError(t, err)
	assert.Equal(t, JumpMerton, p.Model)
	assert.Greater(t, p.Intensity, 0.0)
	assert.Less(t, p.Mean, -0.05)
}

func TestEnsembleAggregates(t *testing.T) {
	e := &Ensemble{
		Paths: []floats.Slice{
			{100, 110, 120},
			{100, 90, 80},
			{100, 100, 100},
		},
		Dt: 1,
	}

	assert.Equal(t, floats.Slice{120, 80, 100}, e.Terminal())
	assert.Equal(t, floats.Slice{100, 100, 100}, e.MeanPath())

	lo := e.QuantilePath(0.1)
	hi := e.QuantilePath(0.9)
	for i := range lo {
		assert.LessOrEqual(t, lo[i], hi[i])
	}
}
