package sde

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/types"
)

// OUParams describes a mean-reverting Ornstein-Uhlenbeck process with
// long-run level Theta, reversion speed Kappa and volatility Sigma.
type OUParams struct {
	X0    float64 `yaml:"x0"`
	Theta float64 `yaml:"theta"`
	Kappa float64 `yaml:"kappa"`
	Sigma float64 `yaml:"sigma"`
}

func (p OUParams) validate() error {
	if p.Kappa <= 0 {
		return &types.InvalidParameterError{Parameter: "kappa", Reason: "must be positive"}
	}
	if p.Sigma < 0 {
		return &types.InvalidParameterError{Parameter: "sigma", Reason: "must be non-negative"}
	}
	return nil
}

// SimulateOU draws one path with the exact Gaussian transition density, so
// the discretization introduces no bias at any step size. The returned path
// has steps+1 points starting at X0.
func SimulateOU(p OUParams, steps int, dt float64, rng *rand.Rand) (floats.Slice, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if steps < 1 || dt <= 0 {
		return nil, &types.InvalidParameterError{Parameter: "steps/dt", Reason: "must be positive"}
	}

	decay := math.Exp(-p.Kappa * dt)
	std := p.Sigma * math.Sqrt((1-decay*decay)/(2*p.Kappa))

	path := make(floats.Slice, steps+1)
	path[0] = p.X0
	for t := 0; t < steps; t++ {
		path[t+1] = p.Theta + (path[t]-p.Theta)*decay + std*rng.NormFloat64()
	}
	return path, nil
}
