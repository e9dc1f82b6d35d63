package lppl

import (
	"math"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
)

// searchSpace fixes the box the nonlinear search lives in. tcLow is the last
// observed index, tcHigh = tcLow + horizon.
type searchSpace struct {
	tcLow, tcHigh float64
}

func newSearchSpace(n int, horizon float64) searchSpace {
	last := float64(n - 1)
	return searchSpace{tcLow: last, tcHigh: last + horizon}
}

// decode maps an unconstrained point into the box, so simplex moves can
// never leave the valid region.
func (s searchSpace) decode(x []float64) (tc, m, omega float64) {
	tc = s.tcLow + 1e-3 + (s.tcHigh-s.tcLow-1e-3)*sigmoid(x[0])
	m = MinExponent + (MaxExponent-MinExponent)*sigmoid(x[1])
	omega = MinFrequency + (MaxFrequency-MinFrequency)*sigmoid(x[2])
	return tc, m, omega
}

func (s searchSpace) encode(tc, m, omega float64) []float64 {
	return []float64{
		logit((tc - s.tcLow - 1e-3) / (s.tcHigh - s.tcLow - 1e-3)),
		logit((m - MinExponent) / (MaxExponent - MinExponent)),
		logit((omega - MinFrequency) / (MaxFrequency - MinFrequency)),
	}
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func logit(p float64) float64 {
	if p <= 1e-9 {
		p = 1e-9
	}
	if p >= 1-1e-9 {
		p = 1 - 1e-9
	}
	return math.Log(p / (1 - p))
}

// localSearch polishes a starting point with Nelder-Mead and reports whether
// the iteration cap was hit.
func localSearch(logPrices floats.Slice, space searchSpace, x0 []float64, maxIter int) (tc, m, omega float64, capped bool) {
	problem := optimize.Problem{Func: func(x []float64) float64 {
		tc, m, omega := space.decode(x)
		return rmse(logPrices, tc, m, omega)
	}}
	settings := &optimize.Settings{MajorIterations: maxIter}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil && result == nil {
		tc, m, omega = space.decode(x0)
		return tc, m, omega, true
	}
	tc, m, omega = space.decode(result.X)
	capped = err != nil || result.Status == optimize.IterationLimit
	return tc, m, omega, capped
}

// fitNelderMead runs a small multistart grid of simplex searches and keeps
// the lowest-residual calibration.
func fitNelderMead(logPrices floats.Slice, cfg Config) (Fit, error) {
	space := newSearchSpace(len(logPrices), cfg.Horizon)

	best := Fit{Residual: math.Inf(1)}
	anyOK := false
	for _, tcFrac := range []float64{0.2, 0.5, 0.8} {
		for _, m := range []float64{0.3, 0.6} {
			for _, omega := range []float64{6.0, 10.0} {
				x0 := space.encode(space.tcLow+tcFrac*cfg.Horizon, m, omega)
				tc, mm, w, capped := localSearch(logPrices, space, x0, cfg.MaxIterations)
				fit, err := calibrate(logPrices, tc, mm, w)
				if err != nil {
					continue
				}
				anyOK = true
				if fit.Residual < best.Residual {
					best = fit
					best.Confidence = score(fit, space, capped)
				}
			}
		}
	}
	if !anyOK {
		return Fit{}, errors.New("nelder-mead: every start failed to calibrate")
	}
	best.Method = MethodNelderMead
	best.Valid = isValid(best, space)
	return best, nil
}

// fitTPE searches the box with a tree-structured Parzen estimator.
func fitTPE(logPrices floats.Slice, cfg Config) (Fit, error) {
	space := newSearchSpace(len(logPrices), cfg.Horizon)

	study, err := goptuna.CreateStudy("lppl-tpe",
		goptuna.StudyOptionSampler(tpe.NewSampler()),
		goptuna.StudyOptionLogger(nil),
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMinimize))
	if err != nil {
		return Fit{}, errors.Wrap(err, "create study")
	}

	objective := func(trial goptuna.Trial) (float64, error) {
		tc, err := trial.SuggestFloat("tc", space.tcLow+1e-3, space.tcHigh)
		if err != nil {
			return 0, err
		}
		m, err := trial.SuggestFloat("m", MinExponent, MaxExponent)
		if err != nil {
			return 0, err
		}
		omega, err := trial.SuggestFloat("omega", MinFrequency, MaxFrequency)
		if err != nil {
			return 0, err
		}
		return rmse(logPrices, tc, m, omega), nil
	}

	trials := cfg.Trials
	if trials <= 0 {
		trials = 200
	}
	if err := study.Optimize(objective, trials); err != nil {
		return Fit{}, errors.Wrap(err, "tpe optimize")
	}

	params, err := study.GetBestParams()
	if err != nil {
		return Fit{}, errors.Wrap(err, "best params")
	}
	fit, err := calibrate(logPrices,
		params["tc"].(float64), params["m"].(float64), params["omega"].(float64))
	if err != nil {
		return Fit{}, err
	}
	fit.Confidence = score(fit, space, false)
	fit.Method = MethodTPE
	fit.Valid = isValid(fit, space)
	return fit, nil
}

// fitGrid scans a coarse lattice of the box and polishes the best cell.
func fitGrid(logPrices floats.Slice, cfg Config) (Fit, error) {
	space := newSearchSpace(len(logPrices), cfg.Horizon)

	var bestTc, bestM, bestW float64
	bestObj := math.Inf(1)
	for _, tcFrac := range floats.Linspace(0.05, 0.95, 10) {
		tc := space.tcLow + tcFrac*cfg.Horizon
		for _, m := range floats.Linspace(MinExponent+0.05, MaxExponent-0.05, 5) {
			for _, omega := range floats.Linspace(MinFrequency+0.5, MaxFrequency-0.5, 7) {
				obj := rmse(logPrices, tc, m, omega)
				if obj < bestObj {
					bestObj = obj
					bestTc, bestM, bestW = tc, m, omega
				}
			}
		}
	}
	if math.IsInf(bestObj, 1) {
		return Fit{}, errors.New("grid: no cell produced a finite objective")
	}

	x0 := space.encode(bestTc, bestM, bestW)
	tc, m, omega, capped := localSearch(logPrices, space, x0, cfg.MaxIterations)
	fit, err := calibrate(logPrices, tc, m, omega)
	if err != nil {
		return Fit{}, err
	}
	fit.Confidence = score(fit, space, capped)
	fit.Method = MethodGrid
	fit.Valid = isValid(fit, space)
	return fit, nil
}

// fitSubsample fits the most recent 60% of the window only, which favors the
// latest acceleration over early history. The critical time is reported on
// the full-series index.
func fitSubsample(logPrices floats.Slice, cfg Config) (Fit, error) {
	n := len(logPrices)
	start := n - int(float64(n)*0.6)
	sub := logPrices[start:]

	subCfg := cfg
	fit, err := fitNelderMead(sub, subCfg)
	if err != nil {
		return Fit{}, errors.Wrap(err, "subsample")
	}

	// shift the critical time back onto full-series indices
	fit.Tc += float64(start)
	fit.Method = MethodSubsample
	fit.Valid = isValid(fit, newSearchSpace(n, cfg.Horizon))
	return fit, nil
}

// score turns a calibration into a confidence in [0, 1]. R-squared is the
// base, halved when a nonlinear parameter is pinned against its bound and
// cut to 0.7 of itself when the optimizer hit its cap.
func score(fit Fit, space searchSpace, capped bool) float64 {
	c := fit.R2
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	if pinned(fit, space) {
		c *= 0.5
	}
	if capped {
		c *= 0.7
	}
	return c
}

func pinned(fit Fit, space searchSpace) bool {
	tcTol := 0.01 * (space.tcHigh - space.tcLow)
	mTol := 0.01 * (MaxExponent - MinExponent)
	wTol := 0.01 * (MaxFrequency - MinFrequency)
	switch {
	case fit.Tc-space.tcLow < tcTol || space.tcHigh-fit.Tc < tcTol:
		return true
	case fit.M-MinExponent < mTol || MaxExponent-fit.M < mTol:
		return true
	case fit.Omega-MinFrequency < wTol || MaxFrequency-fit.Omega < wTol:
		return true
	}
	return false
}

// isValid applies the structural bubble conditions: the power term must pull
// prices up into the singularity (B < 0), the nonlinear parameters must sit
// inside their boxes, and the fit must explain a nontrivial share of the
// variance.
func isValid(fit Fit, space searchSpace) bool {
	return fit.B < 0 &&
		fit.Tc > space.tcLow && fit.Tc <= space.tcHigh &&
		fit.M >= MinExponent && fit.M <= MaxExponent &&
		fit.Omega >= MinFrequency && fit.Omega <= MaxFrequency &&
		fit.R2 >= 0.3
}
