package lppl

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/types"
)

// ConsensusPolicy selects how the per-method critical times are combined.
type ConsensusPolicy string

const (
	// ConsensusMedian is robust to one wild method and is the default.
	ConsensusMedian ConsensusPolicy = "median"
	// ConsensusWeightedMean averages critical times weighted by confidence.
	ConsensusWeightedMean ConsensusPolicy = "weighted_mean"
)

// Config drives an EstimateCrashTime run.
type Config struct {
	// Horizon is how many samples past the end of the series the critical
	// time may land.
	Horizon float64 `yaml:"horizon"`
	// Methods to run; empty means all four.
	Methods []Method `yaml:"methods"`

	Consensus ConsensusPolicy `yaml:"consensus"`

	// Trials bounds the TPE search, MaxIterations each simplex run.
	Trials        int `yaml:"trials"`
	MaxIterations int `yaml:"maxIterations"`
}

func DefaultConfig() Config {
	return Config{
		Horizon:       252,
		Consensus:     ConsensusMedian,
		Trials:        200,
		MaxIterations: 400,
	}
}

func (c Config) methods() []Method {
	if len(c.Methods) > 0 {
		return c.Methods
	}
	return []Method{MethodNelderMead, MethodTPE, MethodGrid, MethodSubsample}
}

// Estimate is the combined crash-time view across methods.
type Estimate struct {
	// Tc is the consensus critical time in sample indices.
	Tc float64
	// DaysAhead is Tc minus the last observed index.
	DaysAhead float64
	// Spread is the standard deviation of the valid per-method critical
	// times, zero with a single valid fit.
	Spread float64
	// Fits holds every method's result, valid or not.
	Fits []Fit

	Policy        ConsensusPolicy
	LowConfidence bool
}

// ValidFits filters to the fits that passed the structural checks.
func (e *Estimate) ValidFits() []Fit {
	out := make([]Fit, 0, len(e.Fits))
	for _, f := range e.Fits {
		if f.Valid {
			out = append(out, f)
		}
	}
	return out
}

// EstimateCrashTime fits the log-periodic model with every configured method
// concurrently and combines the surviving critical times. When no method
// produces a structurally valid fit it returns a NoCrashSignalError wrapping
// the per-method failures, which callers should treat as the normal quiet
// outcome rather than a fault.
func EstimateCrashTime(ctx context.Context, prices floats.Slice, cfg Config) (*Estimate, error) {
	if len(prices) < 100 {
		return nil, &types.InsufficientDataError{Method: "lppl", Need: 100, Got: len(prices)}
	}
	if cfg.Horizon <= 0 {
		return nil, &types.InvalidParameterError{Parameter: "horizon", Reason: "must be positive"}
	}

	logPrices := make(floats.Slice, len(prices))
	for i, p := range prices {
		if p <= 0 {
			return nil, &types.InvalidParameterError{Parameter: "prices", Reason: "must be strictly positive"}
		}
		logPrices[i] = math.Log(p)
	}

	runners := map[Method]func(floats.Slice, Config) (Fit, error){
		MethodNelderMead: fitNelderMead,
		MethodTPE:        fitTPE,
		MethodGrid:       fitGrid,
		MethodSubsample:  fitSubsample,
	}

	var mu sync.Mutex
	var fits []Fit
	var methodErrs error

	g, _ := errgroup.WithContext(ctx)
	for _, m := range cfg.methods() {
		run, ok := runners[m]
		if !ok {
			return nil, &types.InvalidParameterError{Parameter: "method", Reason: string(m) + " is not a known estimation method"}
		}
		method := m
		g.Go(func() error {
			fit, err := run(logPrices, cfg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.WithError(err).WithField("method", method).Debug("crash-time method failed")
				methodErrs = multierr.Append(methodErrs, errors.Wrap(err, string(method)))
				return nil
			}
			fits = append(fits, fit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	est := &Estimate{Fits: fits, Policy: cfg.consensusPolicy()}
	valid := est.ValidFits()
	if len(valid) == 0 {
		for _, f := range fits {
			methodErrs = multierr.Append(methodErrs,
				errors.Errorf("%s: fit rejected (B=%.4g, tc=%.1f, R2=%.3f)", f.Method, f.B, f.Tc, f.R2))
		}
		return nil, &types.NoCrashSignalError{Detail: methodErrs}
	}

	tcs := make(floats.Slice, len(valid))
	for i, f := range valid {
		tcs[i] = f.Tc
	}

	switch est.Policy {
	case ConsensusWeightedMean:
		var num, den float64
		for _, f := range valid {
			w := f.Confidence
			if w <= 0 {
				w = 1e-3
			}
			num += w * f.Tc
			den += w
		}
		est.Tc = num / den
	default:
		est.Tc = floats.Median(tcs)
	}

	if len(tcs) > 1 {
		est.Spread = tcs.Std()
	}
	est.DaysAhead = est.Tc - float64(len(prices)-1)
	est.LowConfidence = agreeing(tcs, est.Tc, 0.1*cfg.Horizon) < 2

	log.WithFields(log.Fields{
		"tc":        est.Tc,
		"daysAhead": est.DaysAhead,
		"valid":     len(valid),
		"lowConf":   est.LowConfidence,
	}).Debug("crash-time consensus")
	return est, nil
}

func (c Config) consensusPolicy() ConsensusPolicy {
	if c.Consensus == "" {
		return ConsensusMedian
	}
	return c.Consensus
}

func agreeing(tcs floats.Slice, center, tol float64) int {
	n := 0
	for _, tc := range tcs {
		if math.Abs(tc-center) <= tol {
			n++
		}
	}
	return n
}

// CrashProbability is the probability mass the consensus places on a crash
// within the next `within` samples, treating the per-method critical times
// as draws around the true one.
func (e *Estimate) CrashProbability(within float64) float64 {
	sigma := e.Spread
	if sigma < 1 {
		sigma = 1
	}
	dist := distuv.Normal{Mu: e.DaysAhead, Sigma: sigma}
	p := dist.CDF(within) - dist.CDF(0)
	if p < 0 {
		return 0
	}
	return p
}
