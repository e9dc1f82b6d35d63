package sde

import (
	"context"
	"math"
	"runtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/types"
)

// ShockSource supplies correlated uniform shocks, one row per step with one
// column per asset. The Gaussian and Student-t copulas both satisfy it.
type ShockSource interface {
	Dim() int
	Sample(n int, rng *rand.Rand) [][]float64
}

// SimulateBasket runs a joint ensemble over several assets whose per-step
// shocks are tied together by a copula. The returned slice holds one
// ensemble per asset; path i of every asset comes from the same copula
// draw, so cross-asset dependence survives into the simulated prices.
// Correlated shocks are serially independent, so fractional noise is not
// supported here.
func SimulateBasket(ctx context.Context, assets []Params, shocks ShockSource, cfg Config) ([]*Ensemble, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if shocks == nil {
		return nil, &types.InvalidParameterError{Parameter: "shocks", Reason: "a copula shock source is required"}
	}
	if len(assets) != shocks.Dim() {
		return nil, &types.InvalidParameterError{Parameter: "assets", Reason: "asset count must match the copula dimension"}
	}
	for _, p := range assets {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if p.hurst() != 0.5 {
			return nil, &types.InvalidParameterError{Parameter: "hurst", Reason: "correlated shocks require H = 0.5"}
		}
	}

	out := make([]*Ensemble, len(assets))
	for j := range out {
		out[j] = &Ensemble{Paths: make([]floats.Slice, cfg.Paths), Dt: cfg.Dt}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < cfg.Paths; i++ {
		i := i
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			seed := uint64(cfg.Seed) + uint64(i)*pathSeedStride
			paths := basketPath(assets, shocks, cfg, rand.New(rand.NewSource(seed)))
			for j := range paths {
				out[j].Paths[i] = paths[j]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"assets": len(assets),
		"paths":  cfg.Paths,
		"steps":  cfg.Steps,
	}).Debug("basket ensemble complete")
	return out, nil
}

func basketPath(assets []Params, shocks ShockSource, cfg Config, rng *rand.Rand) []floats.Slice {
	u := shocks.Sample(cfg.Steps, rng)
	stdNormal := distuv.Normal{Mu: 0, Sigma: 1}

	jumps := make([]*jumpSampler, len(assets))
	states := make([]int, len(assets))
	for j, p := range assets {
		if p.Jump.Model != "" && p.Jump.Model != JumpNone {
			jumps[j] = newJumpSampler(p.Jump, cfg.Dt, rng)
		}
		if p.Regime != nil {
			states[j] = p.Regime.Initial
		}
	}

	sqrtDt := math.Sqrt(cfg.Dt)
	paths := make([]floats.Slice, len(assets))
	for j, p := range assets {
		paths[j] = make(floats.Slice, cfg.Steps+1)
		paths[j][0] = p.S0
	}

	for t := 0; t < cfg.Steps; t++ {
		for j, p := range assets {
			mu, sigma := p.Drift, p.Vol
			if p.Regime != nil {
				mu = p.Regime.Drift[states[j]]
				sigma = p.Regime.Vol[states[j]]
				states[j] = nextState(p.Regime.Transition[states[j]], rng)
			}

			s := paths[j][t]
			dw := stdNormal.Quantile(clampUniform(u[t][j])) * sqrtDt
			driftTerm := mu * cfg.Dt
			if p.Bubble != nil {
				driftTerm += bubbleDrift(p.Bubble, p.TimeOffset+float64(t)*cfg.Dt, cfg.Dt)
			}

			next := s + s*driftTerm + s*sigma*dw
			if cfg.Integrator == Milstein {
				next += 0.5 * sigma * sigma * s * (dw*dw - cfg.Dt)
			}
			if jumps[j] != nil {
				next *= math.Exp(jumps[j].draw())
			}
			if next < priceFloor {
				next = priceFloor
			}
			paths[j][t+1] = next
		}
	}
	return paths
}

// clampUniform keeps the quantile transform finite on a degenerate draw.
func clampUniform(u float64) float64 {
	const eps = 1e-12
	if u < eps {
		return eps
	}
	if u > 1-eps {
		return 1 - eps
	}
	return u
}
