package volatility

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/types"
)

func testParams() Params {
	return Params{Omega: 1e-6, Alpha: 0.08, Beta: 0.85, D: 0.3}
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, testParams().Validate())

	cases := []struct {
		name string
		mod  func(*Params)
	}{
		{"zero omega", func(p *Params) { p.Omega = 0 }},
		{"negative alpha", func(p *Params) { p.Alpha = -0.1 }},
		{"beta at one", func(p *Params) { p.Beta = 1.0 }},
		{"explosive persistence", func(p *Params) { p.Alpha = 0.5; p.Beta = 0.6 }},
		{"d out of range", func(p *Params) { p.D = 0.7 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := testParams()
			tc.mod(&p)
			var invalid *types.InvalidParameterError
			assert.ErrorAs(t, p.Validate(), &invalid)
		})
	}
}

// simulateGARCH draws returns from a plain GARCH(1,1), enough structure for
// the recursion and the likelihood fit to latch onto.
func simulateGARCH(n int, omega, alpha, beta float64, rng *rand.Rand) floats.Slice {
	out := make(floats.Slice, n)
	s2 := omega / (1 - alpha - beta)
	for t := 0; t < n; t++ {
		r := math.Sqrt(s2) * rng.NormFloat64()
		out[t] = r
		s2 = omega + alpha*r*r + beta*s2
	}
	return out
}

func TestConditionalVolatility_positiveAndResponsive(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	returns := simulateGARCH(1500, 1e-6, 0.08, 0.88, rng)

	// splice a shock cluster into the middle
	for i := 700; i < 720; i++ {
		returns[i] *= 6
	}

	vol, err := ConditionalVolatility(returns, testParams())
	require.NoError(t, err)
	require.Len(t, vol, len(returns))

	for i, v := range vol {
		assert.Greaterf(t, v, 0.0, "vol must stay positive at %d", i)
	}

	calm := vol[400:600].Mean()
	stressed := vol[705:730].Mean()
	assert.Greater(t, stressed, 2*calm, "volatility should spike after the shock cluster")
}

func TestConditionalVolatility_longMemoryDecay(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	returns := simulateGARCH(1200, 1e-6, 0.05, 0.90, rng)
	for i := 500; i < 510; i++ {
		returns[i] *= 8
	}

	short, err := ConditionalVolatility(returns, Params{Omega: 1e-6, Alpha: 0.08, Beta: 0.85, D: 0})
	require.NoError(t, err)
	long, err := ConditionalVolatility(returns, Params{Omega: 1e-6, Alpha: 0.08, Beta: 0.85, D: 0.35})
	require.NoError(t, err)

	// 80 steps after the shock the fractional kernel should still carry more
	// of it than the pure short-memory recursion
	assert.Greater(t, long[590], short[590])
}

func TestConditionalVolatility_insufficientData(t *testing.T) {
	_, err := ConditionalVolatility(floats.Slice{0.01}, testParams())
	var short *types.InsufficientDataError
	assert.ErrorAs(t, err, &short)
}

func TestForecast_revertsToLongRun(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	returns := simulateGARCH(1000, 1e-6, 0.08, 0.85, rng)

	p := Params{Omega: 1e-6, Alpha: 0.05, Beta: 0.80, D: 0}
	fc, err := Forecast(returns, p, 400)
	require.NoError(t, err)
	require.Len(t, fc, 400)

	longRun := math.Sqrt(p.Omega / (1 - p.Alpha - p.Beta))
	assert.InDelta(t, longRun, fc[399], longRun*0.05)
}

func TestFit_improvesOnStartingPoint(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	returns := simulateGARCH(2000, 2e-6, 0.10, 0.85, rng)

	fitted, err := Fit(returns, DefaultFitConfig())
	if err != nil {
		var nc *types.NonConvergenceError
		require.ErrorAs(t, err, &nc, "only the iteration cap may be reported")
	}
	require.NoError(t, fitted.Validate())

	start := Params{Omega: returns.Var() * 0.1, Alpha: 0.1, Beta: 0.8, D: 0.2}
	assert.GreaterOrEqual(t, LogLikelihood(returns, fitted), LogLikelihood(returns, start)-1e-6)
}

func TestFit_insufficientData(t *testing.T) {
	_, err := Fit(make(floats.Slice, 10), DefaultFitConfig())
	var short *types.InsufficientDataError
	assert.True(t, errors.As(err, &short))
}
