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
	"github.com/crashradar/crashradar/pkg/fractal"
	"github.com/crashradar/crashradar/pkg/lppl"
)

// pathSeedStride decorrelates per-path seeds derived from one master seed.
const pathSeedStride = 0x9E3779B97F4A7C15

// priceFloor keeps Euler steps from driving a price non-positive.
const priceFloor = 1e-12

// bubbleDriftCap bounds the per-step log drift contributed by the
// log-periodic term, which diverges at the critical time.
const bubbleDriftCap = 0.05

// Simulate runs a Monte Carlo ensemble of the configured process. Paths are
// distributed over a worker pool; each path seeds its own generator from the
// master seed and its index, so the ensemble is bit-identical for a given
// seed no matter how many workers run it.
func Simulate(ctx context.Context, params Params, cfg Config) (*Ensemble, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	paths := make([]floats.Slice, cfg.Paths)

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
			path, err := simulatePath(params, cfg, rand.New(rand.NewSource(seed)))
			if err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"paths": cfg.Paths,
		"steps": cfg.Steps,
		"dt":    cfg.Dt,
	}).Debug("simulation ensemble complete")
	return &Ensemble{Paths: paths, Dt: cfg.Dt}, nil
}

func simulatePath(params Params, cfg Config, rng *rand.Rand) (floats.Slice, error) {
	noise, err := drawNoise(params, cfg, rng)
	if err != nil {
		return nil, err
	}

	var jumps *jumpSampler
	if params.Jump.Model != "" && params.Jump.Model != JumpNone {
		jumps = newJumpSampler(params.Jump, cfg.Dt, rng)
	}

	state := params.Regime
	regimeState := 0
	if state != nil {
		regimeState = state.Initial
	}

	// fractional increments scale as dt^H; at H=0.5 this is the usual
	// sqrt(dt).
	dtH := math.Pow(cfg.Dt, params.hurst())
	path := make(floats.Slice, cfg.Steps+1)
	path[0] = params.S0

	for t := 0; t < cfg.Steps; t++ {
		mu, sigma := params.Drift, params.Vol
		if state != nil {
			mu = state.Drift[regimeState]
			sigma = state.Vol[regimeState]
			regimeState = nextState(state.Transition[regimeState], rng)
		}

		s := path[t]
		dw := noise[t] * dtH
		driftTerm := mu * cfg.Dt
		if params.Bubble != nil {
			driftTerm += bubbleDrift(params.Bubble, params.TimeOffset+float64(t)*cfg.Dt, cfg.Dt)
		}

		next := s + s*driftTerm + s*sigma*dw
		if cfg.Integrator == Milstein {
			next += 0.5 * sigma * sigma * s * (dw*dw - cfg.Dt)
		}
		if jumps != nil {
			next *= math.Exp(jumps.draw())
		}
		if next < priceFloor {
			next = priceFloor
		}
		path[t+1] = next
	}
	return path, nil
}

// drawNoise pre-draws the whole driving noise sequence for one path, unit
// variance per step. Fractional noise falls back from the spectral
// construction to the exact Cholesky one when the embedding fails.
func drawNoise(params Params, cfg Config, rng *rand.Rand) (floats.Slice, error) {
	h := params.hurst()
	if h == 0.5 {
		out := make(floats.Slice, cfg.Steps)
		for i := range out {
			out[i] = rng.NormFloat64()
		}
		return out, nil
	}

	noise, err := fractal.FGN(h, cfg.Steps, fractal.FBMDaviesHarte, rng)
	if err == nil {
		return noise, nil
	}
	return fractal.FGN(h, cfg.Steps, fractal.FBMCholesky, rng)
}

// bubbleDrift is the finite-difference log-price slope of the fitted
// log-periodic law, capped because it diverges approaching the critical
// time.
func bubbleDrift(fit *lppl.Fit, t, dt float64) float64 {
	d := fit.Evaluate(t+dt) - fit.Evaluate(t)
	if d > bubbleDriftCap {
		return bubbleDriftCap
	}
	if d < -bubbleDriftCap {
		return -bubbleDriftCap
	}
	return d
}

func nextState(row []float64, rng *rand.Rand) int {
	u := rng.Float64()
	var cum float64
	for j, p := range row {
		cum += p
		if u < cum {
			return j
		}
	}
	return len(row) - 1
}

// jumpSampler draws the total log jump per step under a compound Poisson
// clock.
type jumpSampler struct {
	params  JumpParams
	poisson distuv.Poisson
	rng     *rand.Rand
}

func newJumpSampler(p JumpParams, dt float64, rng *rand.Rand) *jumpSampler {
	return &jumpSampler{
		params:  p,
		poisson: distuv.Poisson{Lambda: p.Intensity * dt, Src: rng},
		rng:     rng,
	}
}

func (j *jumpSampler) draw() float64 {
	n := int(j.poisson.Rand())
	var total float64
	for k := 0; k < n; k++ {
		total += j.drawOne()
	}
	return total
}

func (j *jumpSampler) drawOne() float64 {
	switch j.params.Model {
	case JumpMerton:
		return j.params.Mean + j.params.Std*j.rng.NormFloat64()
	case JumpKou:
		if j.rng.Float64() < j.params.PUp {
			return j.rng.ExpFloat64() / j.params.EtaUp
		}
		return -j.rng.ExpFloat64() / j.params.EtaDown
	default:
		return 0
	}
}

func logRatio(a, b float64) float64 {
	return math.Log(a / b)
}
