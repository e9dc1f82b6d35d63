package sde

import (
	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/lppl"
	"github.com/crashradar/crashradar/pkg/types"
)

// Integrator selects the discretization scheme.
type Integrator string

const (
	// EulerMaruyama is the first-order scheme.
	EulerMaruyama Integrator = "euler_maruyama"
	// Milstein adds the second-order diffusion correction term.
	Milstein Integrator = "milstein"
)

// JumpModel selects the jump-size law layered on the diffusion.
type JumpModel string

const (
	JumpNone JumpModel = "none"
	// JumpMerton draws lognormal jump sizes.
	JumpMerton JumpModel = "merton"
	// JumpKou draws asymmetric double-exponential jump sizes.
	JumpKou JumpModel = "kou"
)

// JumpParams parameterizes the compound Poisson jump component. Intensity
// is jumps per unit time.
type JumpParams struct {
	Model     JumpModel `yaml:"model"`
	Intensity float64   `yaml:"intensity"`

	// Merton: log-jump mean and standard deviation.
	Mean float64 `yaml:"mean"`
	Std  float64 `yaml:"std"`

	// Kou: upward probability and the two exponential rates.
	PUp     float64 `yaml:"pUp"`
	EtaUp   float64 `yaml:"etaUp"`
	EtaDown float64 `yaml:"etaDown"`
}

func (j JumpParams) validate() error {
	switch j.Model {
	case "", JumpNone:
		return nil
	case JumpMerton:
		if j.Intensity < 0 {
			return &types.InvalidParameterError{Parameter: "jump.intensity", Reason: "must be non-negative"}
		}
		if j.Std < 0 {
			return &types.InvalidParameterError{Parameter: "jump.std", Reason: "must be non-negative"}
		}
	case JumpKou:
		if j.Intensity < 0 {
			return &types.InvalidParameterError{Parameter: "jump.intensity", Reason: "must be non-negative"}
		}
		if j.PUp < 0 || j.PUp > 1 {
			return &types.InvalidParameterError{Parameter: "jump.pUp", Reason: "must be in [0, 1]"}
		}
		if j.EtaUp <= 1 || j.EtaDown <= 0 {
			return &types.InvalidParameterError{Parameter: "jump.eta", Reason: "etaUp must exceed 1 and etaDown must be positive"}
		}
	default:
		return &types.InvalidParameterError{Parameter: "jump.model", Reason: "unknown jump model " + string(j.Model)}
	}
	return nil
}

// RegimeSwitch modulates drift and volatility by a hidden Markov chain that
// each path simulates independently.
type RegimeSwitch struct {
	Transition [][]float64 `yaml:"transition"`
	Drift      []float64   `yaml:"drift"`
	Vol        []float64   `yaml:"vol"`
	Initial    int         `yaml:"initial"`
}

func (r *RegimeSwitch) validate() error {
	k := len(r.Transition)
	if k < 2 {
		return &types.InvalidParameterError{Parameter: "regime.transition", Reason: "need at least two states"}
	}
	if len(r.Drift) != k || len(r.Vol) != k {
		return &types.InvalidParameterError{Parameter: "regime", Reason: "drift and vol must match the state count"}
	}
	if r.Initial < 0 || r.Initial >= k {
		return &types.InvalidParameterError{Parameter: "regime.initial", Reason: "initial state out of range"}
	}
	for i, row := range r.Transition {
		if len(row) != k {
			return &types.InvalidParameterError{Parameter: "regime.transition", Reason: "matrix must be square"}
		}
		var sum float64
		for _, p := range row {
			if p < 0 {
				return &types.InvalidParameterError{Parameter: "regime.transition", Reason: "negative probability"}
			}
			sum += p
		}
		if sum < 0.999 || sum > 1.001 {
			_ = i
			return &types.InvalidParameterError{Parameter: "regime.transition", Reason: "rows must sum to one"}
		}
	}
	return nil
}

// Params describes one simulated asset.
type Params struct {
	S0    float64 `yaml:"s0"`
	Drift float64 `yaml:"drift"`
	Vol   float64 `yaml:"vol"`

	// Hurst selects fractional Gaussian driving noise; 0.5 (or zero value
	// via DefaultHurst) is ordinary Brownian motion.
	Hurst float64 `yaml:"hurst"`

	Jump JumpParams `yaml:"jump"`

	// Regime, when set, overrides the scalar Drift and Vol with
	// state-dependent values along a simulated Markov chain.
	Regime *RegimeSwitch `yaml:"regime,omitempty"`

	// Bubble, when set, adds the log-periodic drift term. TimeOffset places
	// step 0 of the simulation on the fit's time axis.
	Bubble     *lppl.Fit `yaml:"-"`
	TimeOffset float64   `yaml:"timeOffset"`
}

func (p Params) validate() error {
	if p.S0 <= 0 {
		return &types.InvalidParameterError{Parameter: "s0", Reason: "must be positive"}
	}
	if p.Vol < 0 {
		return &types.InvalidParameterError{Parameter: "vol", Reason: "must be non-negative"}
	}
	if p.Hurst != 0 && (p.Hurst <= 0 || p.Hurst >= 1) {
		return &types.InvalidParameterError{Parameter: "hurst", Reason: "must be in (0, 1)"}
	}
	if err := p.Jump.validate(); err != nil {
		return err
	}
	if p.Regime != nil {
		if err := p.Regime.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (p Params) hurst() float64 {
	if p.Hurst == 0 {
		return 0.5
	}
	return p.Hurst
}

// Config sizes a Monte Carlo run. Seed fixes the whole ensemble: every path
// derives its own generator from Seed and its index, so results are
// reproducible regardless of worker count.
type Config struct {
	Paths   int     `yaml:"paths"`
	Steps   int     `yaml:"steps"`
	Dt      float64 `yaml:"dt"`
	Seed    int64   `yaml:"seed"`
	Workers int     `yaml:"workers"`

	Integrator Integrator `yaml:"integrator"`
}

func DefaultConfig() Config {
	return Config{
		Paths:      1000,
		Steps:      252,
		Dt:         1.0 / 252,
		Seed:       1,
		Integrator: EulerMaruyama,
	}
}

func (c Config) validate() error {
	if c.Paths < 1 {
		return &types.InvalidParameterError{Parameter: "paths", Reason: "must be positive"}
	}
	if c.Steps < 1 {
		return &types.InvalidParameterError{Parameter: "steps", Reason: "must be positive"}
	}
	if c.Dt <= 0 {
		return &types.InvalidParameterError{Parameter: "dt", Reason: "must be positive"}
	}
	switch c.Integrator {
	case "", EulerMaruyama, Milstein:
	default:
		return &types.InvalidParameterError{Parameter: "integrator", Reason: "unknown scheme " + string(c.Integrator)}
	}
	return nil
}

// Ensemble is the output of a simulation run. Each path holds Steps+1
// prices, the first being S0.
type Ensemble struct {
	Paths []floats.Slice
	Dt    float64
}

// Terminal collects the final price of every path.
func (e *Ensemble) Terminal() floats.Slice {
	out := make(floats.Slice, len(e.Paths))
	for i, p := range e.Paths {
		out[i] = p.Last()
	}
	return out
}

// TerminalReturns collects each path's total log return.
func (e *Ensemble) TerminalReturns() floats.Slice {
	out := make(floats.Slice, len(e.Paths))
	for i, p := range e.Paths {
		out[i] = logRatio(p.Last(), p[0])
	}
	return out
}

// QuantilePath returns the pointwise q-quantile (q in [0, 1]) across paths
// at every step.
func (e *Ensemble) QuantilePath(q float64) floats.Slice {
	if len(e.Paths) == 0 {
		return nil
	}
	steps := len(e.Paths[0])
	out := make(floats.Slice, steps)
	col := make(floats.Slice, len(e.Paths))
	for t := 0; t < steps; t++ {
		for i, p := range e.Paths {
			col[i] = p[t]
		}
		out[t] = floats.Percentile(col, q*100)
	}
	return out
}

// MeanPath returns the pointwise mean across paths.
func (e *Ensemble) MeanPath() floats.Slice {
	if len(e.Paths) == 0 {
		return nil
	}
	steps := len(e.Paths[0])
	out := make(floats.Slice, steps)
	for t := 0; t < steps; t++ {
		var sum float64
		for _, p := range e.Paths {
			sum += p[t]
		}
		out[t] = sum / float64(len(e.Paths))
	}
	return out
}
