package fractal

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sajari/regression"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/types"
)

// HurstMethod selects the Hurst exponent estimator.
type HurstMethod string

const (
	// HurstRS is the classic rescaled-range analysis, E[R(n)/S(n)] ~ n^H.
	HurstRS HurstMethod = "rs"
	// HurstDFA is detrended fluctuation analysis, more robust on
	// non-stationary series.
	HurstDFA HurstMethod = "dfa"
	// HurstVariance fits Var(X(t+tau) - X(t)) ~ tau^(2H) on the integrated
	// series.
	HurstVariance HurstMethod = "variance"
)

const (
	minLenRS       = 128
	minLenDFA      = 100
	minLenVariance = 60
)

// Persistence classifies a Hurst exponent into memory bands.
type Persistence string

const (
	StrongPersistence       Persistence = "strong_persistence"
	ModeratePersistence     Persistence = "moderate_persistence"
	Brownian                Persistence = "brownian"
	ModerateAntiPersistence Persistence = "moderate_anti_persistence"
	StrongAntiPersistence   Persistence = "strong_anti_persistence"
)

// ClassifyHurst maps a Hurst exponent to its persistence class. Pure
// function of H.
func ClassifyHurst(h float64) Persistence {
	switch {
	case h > 0.65:
		return StrongPersistence
	case h > 0.55:
		return ModeratePersistence
	case h > 0.45:
		return Brownian
	case h > 0.35:
		return ModerateAntiPersistence
	default:
		return StrongAntiPersistence
	}
}

// HurstDiagnostics carries the regression details behind an estimate.
type HurstDiagnostics struct {
	Hurst       float64
	RSquared    float64
	StdError    float64
	Scales      floats.Slice
	Statistics  floats.Slice
	Persistence Persistence
}

// EstimateHurst estimates the Hurst exponent of an increment (return)
// series. The estimators integrate the series internally where the method
// requires the level process.
func EstimateHurst(increments floats.Slice, method HurstMethod) (float64, *HurstDiagnostics, error) {
	switch method {
	case HurstRS:
		return hurstRS(increments)
	case HurstDFA:
		return hurstDFA(increments)
	case HurstVariance:
		return hurstVariance(increments)
	default:
		return 0, nil, errors.Errorf("unknown hurst method %q", method)
	}
}

func hurstRS(series floats.Slice) (float64, *HurstDiagnostics, error) {
	n := len(series)
	if n < minLenRS {
		return 0, nil, &types.InsufficientDataError{Method: "hurst/rs", Need: minLenRS, Got: n}
	}

	var scales, rsValues floats.Slice
	for window := 16; window <= n/4; window *= 2 {
		rs := meanRescaledRange(series, window)
		if rs <= 0 {
			continue
		}
		scales.Push(float64(window))
		rsValues.Push(rs)
	}
	if len(scales) < 3 {
		return 0, nil, &types.InsufficientDataError{Method: "hurst/rs", Need: minLenRS, Got: n}
	}

	slope, r2, stderr, err := logLogFit(scales, rsValues)
	if err != nil {
		return 0, nil, err
	}
	h := slope
	return h, &HurstDiagnostics{
		Hurst:       h,
		RSquared:    r2,
		StdError:    stderr,
		Scales:      scales,
		Statistics:  rsValues,
		Persistence: ClassifyHurst(h),
	}, nil
}

// meanRescaledRange averages R/S over non-overlapping segments of the given
// window size.
func meanRescaledRange(series floats.Slice, window int) float64 {
	numSegments := len(series) / window
	var rs floats.Slice
	for i := 0; i < numSegments; i++ {
		segment := series[i*window : (i+1)*window]
		deviations := floats.Demean(segment).CumSum()
		r := deviations.Max() - deviations.Min()
		s := segment.Std()
		if s > 0 {
			rs.Push(r / s)
		}
	}
	if len(rs) == 0 {
		return 0
	}
	return rs.Mean()
}

func hurstDFA(series floats.Slice) (float64, *HurstDiagnostics, error) {
	n := len(series)
	if n < minLenDFA {
		return 0, nil, &types.InsufficientDataError{Method: "hurst/dfa", Need: minLenDFA, Got: n}
	}

	profile := floats.Demean(series).CumSum()

	var scales, fluctuations floats.Slice
	for scale := 4; scale <= n/4; scale = int(float64(scale) * 1.5) {
		f := dfaFluctuation(profile, scale)
		if f <= 0 {
			continue
		}
		scales.Push(float64(scale))
		fluctuations.Push(f)
	}
	if len(scales) < 3 {
		return 0, nil, &types.InsufficientDataError{Method: "hurst/dfa", Need: minLenDFA, Got: n}
	}

	slope, r2, stderr, err := logLogFit(scales, fluctuations)
	if err != nil {
		return 0, nil, err
	}
	h := slope
	return h, &HurstDiagnostics{
		Hurst:       h,
		RSquared:    r2,
		StdError:    stderr,
		Scales:      scales,
		Statistics:  fluctuations,
		Persistence: ClassifyHurst(h),
	}, nil
}

// dfaFluctuation is the RMS residual around a per-segment linear trend,
// averaged over all full segments of the given scale.
func dfaFluctuation(profile floats.Slice, scale int) float64 {
	numSegments := len(profile) / scale
	var sum float64
	var count int
	for i := 0; i < numSegments; i++ {
		segment := profile[i*scale : (i+1)*scale]
		slope, intercept := linearFit(segment)
		var ss float64
		for j, v := range segment {
			resid := v - (intercept + slope*float64(j))
			ss += resid * resid
		}
		sum += math.Sqrt(ss / float64(scale))
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func hurstVariance(series floats.Slice) (float64, *HurstDiagnostics, error) {
	n := len(series)
	if n < minLenVariance {
		return 0, nil, &types.InsufficientDataError{Method: "hurst/variance", Need: minLenVariance, Got: n}
	}

	// integrate to the level process before taking lagged differences
	level := series.CumSum()

	maxLag := n / 10
	step := maxLag / 20
	if step < 1 {
		step = 1
	}

	var lags, variances floats.Slice
	for lag := 1; lag < maxLag; lag += step {
		var diffs floats.Slice
		for i := lag; i < len(level); i++ {
			diffs.Push(level[i] - level[i-lag])
		}
		v := diffs.Var()
		if v <= 0 {
			continue
		}
		lags.Push(float64(lag))
		variances.Push(v)
	}
	if len(lags) < 3 {
		return 0, nil, &types.InsufficientDataError{Method: "hurst/variance", Need: minLenVariance, Got: n}
	}

	slope, r2, stderr, err := logLogFit(lags, variances)
	if err != nil {
		return 0, nil, err
	}
	h := slope / 2 // Var ~ tau^(2H)
	return h, &HurstDiagnostics{
		Hurst:       h,
		RSquared:    r2,
		StdError:    stderr / 2,
		Scales:      lags,
		Statistics:  variances,
		Persistence: ClassifyHurst(h),
	}, nil
}

// RollingHurst estimates H over a sliding window and flags indexes where the
// estimate jumps by more than shiftThreshold, which usually coincides with a
// market regime change.
func RollingHurst(increments floats.Slice, window int, method HurstMethod, shiftThreshold float64) (floats.Slice, []int, error) {
	if len(increments) < window+1 {
		return nil, nil, &types.InsufficientDataError{Method: "hurst/rolling", Need: window + 1, Got: len(increments)}
	}
	var hs floats.Slice
	for i := 0; i+window <= len(increments); i++ {
		h, _, err := EstimateHurst(increments[i:i+window], method)
		if err != nil {
			return nil, nil, err
		}
		hs.Push(h)
	}
	var shifts []int
	for i := 1; i < len(hs); i++ {
		if math.Abs(hs[i]-hs[i-1]) > shiftThreshold {
			shifts = append(shifts, i)
		}
	}
	return hs, shifts, nil
}

// logLogFit regresses log(y) on log(x) and returns the slope, R squared and
// the standard error of the slope.
func logLogFit(xs, ys floats.Slice) (slope, r2, stderr float64, err error) {
	r := new(regression.Regression)
	r.SetObserved("log(y)")
	r.SetVar(0, "log(x)")

	logX := make(floats.Slice, len(xs))
	logY := make(floats.Slice, len(ys))
	for i := range xs {
		logX[i] = math.Log(xs[i])
		logY[i] = math.Log(ys[i])
		r.Train(regression.DataPoint(logY[i], []float64{logX[i]}))
	}
	if err = r.Run(); err != nil {
		return 0, 0, 0, errors.Wrap(err, "log-log regression")
	}

	slope = r.Coeff(1)
	intercept := r.Coeff(0)
	r2 = r.R2

	// standard error of the slope
	var ssRes, ssX float64
	meanX := logX.Mean()
	for i := range logX {
		resid := logY[i] - (intercept + slope*logX[i])
		ssRes += resid * resid
		dx := logX[i] - meanX
		ssX += dx * dx
	}
	if n := len(logX); n > 2 && ssX > 0 {
		stderr = math.Sqrt(ssRes / float64(n-2) / ssX)
	}
	return slope, r2, stderr, nil
}

// linearFit fits y = intercept + slope*i over the segment indexes.
func linearFit(segment floats.Slice) (slope, intercept float64) {
	n := float64(len(segment))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range segment {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}
