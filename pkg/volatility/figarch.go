package volatility

import (
	"math"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/optimize"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/fractal"
	"github.com/crashradar/crashradar/pkg/types"
)

const sigma2Floor = 1e-12

// Params is a FIGARCH(1, d, 1) parameter set. D is the fractional
// integration order of the squared-residual memory.
type Params struct {
	Omega float64 `yaml:"omega"`
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
	D     float64 `yaml:"d"`

	// Truncation bounds the fractional-differencing memory kernel.
	Truncation int `yaml:"truncation"`
}

func (p Params) Validate() error {
	switch {
	case p.Omega <= 0:
		return &types.InvalidParameterError{Parameter: "omega", Reason: "must be positive"}
	case p.Alpha < 0 || p.Alpha >= 1:
		return &types.InvalidParameterError{Parameter: "alpha", Reason: "must be in [0, 1)"}
	case p.Beta < 0 || p.Beta >= 1:
		return &types.InvalidParameterError{Parameter: "beta", Reason: "must be in [0, 1)"}
	case p.Alpha+p.Beta >= 1:
		return &types.InvalidParameterError{Parameter: "alpha+beta", Reason: "must be below 1"}
	case p.D <= -0.5 || p.D >= 0.5:
		return &types.InvalidParameterError{Parameter: "d", Reason: "must be in (-0.5, 0.5)"}
	}
	return nil
}

func (p Params) truncation() int {
	if p.Truncation > 0 {
		return p.Truncation
	}
	return fractal.DefaultTruncation
}

// ConditionalVolatility runs the fractionally integrated variance recursion
//
//	sigma2_t = omega + alpha*eps2_{t-1} + beta*sigma2_{t-1} + (1-(1-L)^d) eps2_t
//
// with the fractional term expanded through the truncated binomial kernel.
// The returned series is the conditional standard deviation; variance is
// clamped to a small positive floor so it stays positive at every step.
func ConditionalVolatility(returns floats.Slice, p Params) (floats.Slice, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(returns)
	if n < 2 {
		return nil, &types.InsufficientDataError{Method: "figarch", Need: 2, Got: n}
	}

	eps2 := make(floats.Slice, n)
	for i, r := range returns {
		eps2[i] = r * r
	}

	// (1-(1-L)^d) eps2_t = -sum_{k>=1} c_k(d) eps2_{t-k}
	kernel := fractal.NewGrunwaldKernel(p.D, p.truncation())

	sigma2 := make(floats.Slice, n)
	sigma2[0] = eps2.Mean()
	clamped := 0
	for t := 1; t < n; t++ {
		longMemory := p.longMemoryTerm(kernel, eps2, t)
		v := p.Omega + p.Alpha*eps2[t-1] + p.Beta*sigma2[t-1] + longMemory
		if v < sigma2Floor {
			v = sigma2Floor
			clamped++
		}
		sigma2[t] = v
	}
	if clamped > 0 {
		log.WithField("steps", clamped).Debug("figarch variance clamped to floor")
	}

	vol := make(floats.Slice, n)
	for i, v := range sigma2 {
		vol[i] = math.Sqrt(v)
	}
	return vol, nil
}

func (p Params) longMemoryTerm(kernel *fractal.GrunwaldKernel, eps2 floats.Slice, t int) float64 {
	var sum float64
	kmax := t
	if kmax > p.truncation()-1 {
		kmax = p.truncation() - 1
	}
	for k := 1; k <= kmax; k++ {
		sum -= kernel.Weight(k) * eps2[t-k]
	}
	return sum
}

// Forecast projects the conditional variance h steps ahead with geometric
// mean reversion towards the unconditional level.
func Forecast(returns floats.Slice, p Params, horizon int) (floats.Slice, error) {
	vol, err := ConditionalVolatility(returns, p)
	if err != nil {
		return nil, err
	}
	last := vol.Last() * vol.Last()
	persistence := p.Alpha + p.Beta
	longRun := p.Omega / (1 - persistence)

	out := make(floats.Slice, horizon)
	level := last
	for h := 0; h < horizon; h++ {
		level = longRun + (level-longRun)*persistence
		if level < sigma2Floor {
			level = sigma2Floor
		}
		out[h] = math.Sqrt(level)
	}
	return out, nil
}

// FitConfig bounds the maximum-likelihood search.
type FitConfig struct {
	MaxIterations int `yaml:"maxIterations"`
	Truncation    int `yaml:"truncation"`
}

func DefaultFitConfig() FitConfig {
	return FitConfig{MaxIterations: 500, Truncation: fractal.DefaultTruncation}
}

// Fit estimates FIGARCH parameters by Gaussian quasi-maximum likelihood
// under a Nelder-Mead search in an unconstrained reparameterization, so
// every visited point maps back into the valid parameter region. Hitting
// the iteration cap returns the best parameters found together with a
// NonConvergenceError.
func Fit(returns floats.Slice, cfg FitConfig) (Params, error) {
	if len(returns) < 50 {
		return Params{}, &types.InsufficientDataError{Method: "figarch/fit", Need: 50, Got: len(returns)}
	}

	objective := func(x []float64) float64 {
		p := decodeParams(x, cfg.Truncation)
		return -logLikelihood(returns, p)
	}

	problem := optimize.Problem{Func: objective}
	initX := encodeParams(Params{
		Omega: returns.Var() * 0.1,
		Alpha: 0.1,
		Beta:  0.8,
		D:     0.2,
	})

	settings := &optimize.Settings{
		MajorIterations: cfg.MaxIterations,
	}
	result, err := optimize.Minimize(problem, initX, settings, &optimize.NelderMead{})
	if err != nil && result == nil {
		return Params{}, err
	}

	best := decodeParams(result.X, cfg.Truncation)
	if err != nil || result.Status == optimize.IterationLimit || result.Status == optimize.FunctionEvaluationLimit {
		return best, &types.NonConvergenceError{What: "figarch MLE", Iterations: cfg.MaxIterations}
	}
	return best, nil
}

// LogLikelihood exposes the Gaussian quasi-likelihood of a parameter set,
// mostly so calibration quality can be compared across candidates.
func LogLikelihood(returns floats.Slice, p Params) float64 {
	return logLikelihood(returns, p)
}

func logLikelihood(returns floats.Slice, p Params) float64 {
	vol, err := ConditionalVolatility(returns, p)
	if err != nil {
		return math.Inf(-1)
	}
	var ll float64
	for i, r := range returns {
		s2 := vol[i] * vol[i]
		ll += -0.5 * (math.Log(2*math.Pi*s2) + r*r/s2)
	}
	return ll
}

// encodeParams maps params into the unconstrained search space.
func encodeParams(p Params) []float64 {
	return []float64{
		math.Log(p.Omega),
		logit(p.Alpha / 0.998),
		logit(p.Beta / (0.999 - p.Alpha)),
		math.Atanh(p.D / 0.499),
	}
}

// decodeParams is the inverse map; any real vector yields valid params.
func decodeParams(x []float64, truncation int) Params {
	alpha := 0.998 * sigmoid(x[1])
	beta := (0.999 - alpha) * sigmoid(x[2])
	return Params{
		Omega:      math.Exp(x[0]),
		Alpha:      alpha,
		Beta:       beta,
		D:          0.499 * math.Tanh(x[3]),
		Truncation: truncation,
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func logit(p float64) float64 {
	if p <= 0 {
		p = 1e-9
	}
	if p >= 1 {
		p = 1 - 1e-9
	}
	return math.Log(p / (1 - p))
}
