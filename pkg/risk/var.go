package risk

import (
	"math"
	"sort"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/sde"
	"github.com/crashradar/crashradar/pkg/types"
)

// ValueAtRisk is the loss quantile of a return sample at the given
// confidence, reported as a positive number. With confidence 0.95 it is the
// 5th percentile loss.
func ValueAtRisk(returns floats.Slice, confidence float64) (float64, error) {
	if err := checkSample(returns, confidence); err != nil {
		return 0, err
	}
	sorted := returns.Copy()
	sort.Float64s(sorted)
	idx := int((1 - confidence) * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return -sorted[idx], nil
}

// ExpectedShortfall is the mean loss beyond the VaR quantile, the CVaR.
func ExpectedShortfall(returns floats.Slice, confidence float64) (float64, error) {
	if err := checkSample(returns, confidence); err != nil {
		return 0, err
	}
	sorted := returns.Copy()
	sort.Float64s(sorted)
	idx := int((1 - confidence) * float64(len(sorted)))
	if idx < 1 {
		idx = 1
	}
	var sum float64
	for i := 0; i < idx; i++ {
		sum += sorted[i]
	}
	return -sum / float64(idx), nil
}

func checkSample(returns floats.Slice, confidence float64) error {
	if len(returns) < 20 {
		return &types.InsufficientDataError{Method: "tail risk", Need: 20, Got: len(returns)}
	}
	if confidence <= 0 || confidence >= 1 {
		return &types.InvalidParameterError{Parameter: "confidence", Reason: "must be in (0, 1)"}
	}
	return nil
}

// MaxDrawdown is the deepest peak-to-trough fraction lost along a price
// path, in [0, 1].
func MaxDrawdown(prices floats.Slice) float64 {
	if len(prices) == 0 {
		return 0
	}
	peak := prices[0]
	var worst float64
	for _, p := range prices {
		if p > peak {
			peak = p
		}
		dd := (peak - p) / peak
		if dd > worst {
			worst = dd
		}
	}
	return worst
}

// EnsembleReport summarizes the tail risk of a simulated ensemble.
type EnsembleReport struct {
	Confidence float64

	// VaR and CVaR are on total log returns over the simulated horizon.
	VaR  float64
	CVaR float64

	// CrashProbability is the share of paths losing at least the crash
	// threshold at any point along the way.
	CrashProbability float64
	CrashThreshold   float64

	MeanDrawdown  float64
	WorstDrawdown float64
}

// Assess runs the standard tail metrics over an ensemble. threshold is the
// drawdown fraction that counts as a crash, e.g. 0.20.
func Assess(e *sde.Ensemble, confidence, threshold float64) (*EnsembleReport, error) {
	if threshold <= 0 || threshold >= 1 {
		return nil, &types.InvalidParameterError{Parameter: "threshold", Reason: "must be in (0, 1)"}
	}

	rets := e.TerminalReturns()
	v, err := ValueAtRisk(rets, confidence)
	if err != nil {
		return nil, err
	}
	cv, err := ExpectedShortfall(rets, confidence)
	if err != nil {
		return nil, err
	}

	report := &EnsembleReport{
		Confidence:     confidence,
		VaR:            v,
		CVaR:           cv,
		CrashThreshold: threshold,
	}

	crashed := 0
	var ddSum float64
	for _, path := range e.Paths {
		dd := MaxDrawdown(path)
		ddSum += dd
		if dd >= threshold {
			crashed++
		}
		if dd > report.WorstDrawdown {
			report.WorstDrawdown = dd
		}
	}
	report.MeanDrawdown = ddSum / float64(len(e.Paths))
	report.CrashProbability = float64(crashed) / float64(len(e.Paths))

	if math.IsNaN(report.VaR) || math.IsNaN(report.CVaR) {
		return nil, &types.InvalidParameterError{Parameter: "returns", Reason: "non-finite tail statistics"}
	}
	return report, nil
}
