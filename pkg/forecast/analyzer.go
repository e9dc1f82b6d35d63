package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/crashradar/crashradar/pkg/bubble"
	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/fractal"
	"github.com/crashradar/crashradar/pkg/lppl"
	"github.com/crashradar/crashradar/pkg/regime"
	"github.com/crashradar/crashradar/pkg/risk"
	"github.com/crashradar/crashradar/pkg/sde"
	"github.com/crashradar/crashradar/pkg/types"
	"github.com/crashradar/crashradar/pkg/volatility"
)

// minObservations is the shortest history the full pipeline runs on.
const minObservations = 260

// Alert is one triggered warning, priority 1 being the most urgent.
type Alert struct {
	Level    bubble.AlertLevel
	Kind     string
	Message  string
	Priority int
}

// Report is the complete output of one analysis run.
type Report struct {
	RunID       string
	GeneratedAt time.Time

	Observations int
	LastPrice    float64

	Hurst       float64
	Persistence fractal.Persistence

	Regime        *regime.Model
	RegimeLabels  []regime.Label
	CurrentRegime int

	VolatilityParams  volatility.Params
	CurrentVolatility float64

	// CrashTime is nil when no method produced a valid signal.
	CrashTime *lppl.Estimate

	BubbleIndex floats.Slice
	BubbleLevel bubble.AlertLevel

	// CrashProbability blends the composite index with the log-periodic
	// confidence.
	CrashProbability float64

	// Forecast fan over the configured horizon.
	Median floats.Slice
	Lower  floats.Slice
	Upper  floats.Slice

	Risk *risk.EnsembleReport

	Alerts       []Alert
	OverallLevel bubble.AlertLevel

	// Warnings records non-fatal degradations, e.g. estimators that hit
	// their iteration caps.
	Warnings []string
}

// Analyzer runs the full pipeline over a price history.
type Analyzer struct {
	cfg Config
}

func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze walks the stages in dependency order: memory diagnostics, regime
// filtering and volatility on the returns, crash-time estimation and the
// composite index on prices, then a forward ensemble for the fan and the
// tail risk. Estimators that fail to converge degrade the report instead of
// aborting it.
func (a *Analyzer) Analyze(ctx context.Context, series *types.PriceSeries) (*Report, error) {
	if series.Len() < minObservations {
		return nil, &types.InsufficientDataError{Method: "forecast", Need: minObservations, Got: series.Len()}
	}

	report := &Report{
		RunID:        uuid.New().String(),
		GeneratedAt:  time.Now(),
		Observations: series.Len(),
		LastPrice:    series.Prices.Last(),
	}
	l := log.WithField("run", report.RunID)

	returns := series.Returns()

	h, diag, err := fractal.EstimateHurst(returns, a.cfg.HurstMethod)
	if err != nil {
		return nil, err
	}
	report.Hurst = h
	report.Persistence = diag.Persistence
	l.WithField("hurst", h).Debug("memory diagnostics done")

	model, filtered, err := regime.Fit(returns, a.cfg.Regime)
	if err != nil {
		var nc *types.NonConvergenceError
		if !errors.As(err, &nc) {
			return nil, err
		}
		report.Warnings = append(report.Warnings, err.Error())
	}
	report.Regime = model
	report.RegimeLabels = model.ClassifyRegimes()
	report.CurrentRegime = filtered.States[len(filtered.States)-1]

	volParams, err := volatility.Fit(returns, a.cfg.Volatility)
	if err != nil {
		var nc *types.NonConvergenceError
		if !errors.As(err, &nc) {
			return nil, err
		}
		report.Warnings = append(report.Warnings, err.Error())
	}
	report.VolatilityParams = volParams
	condVol, err := volatility.ConditionalVolatility(returns, volParams)
	if err != nil {
		return nil, err
	}
	report.CurrentVolatility = condVol.Last()

	estimate, err := lppl.EstimateCrashTime(ctx, series.Prices, a.cfg.CrashTime)
	if err != nil {
		var quiet *types.NoCrashSignalError
		if !errors.As(err, &quiet) {
			return nil, err
		}
		l.Debug("no log-periodic crash signal")
	} else {
		report.CrashTime = estimate
	}

	index, err := bubble.FromSeries(series.Prices, volumesOrNil(series), a.cfg.Bubble)
	if err != nil {
		return nil, err
	}
	report.BubbleIndex = index
	tracker := bubble.Tracker{Hysteresis: a.cfg.Hysteresis}
	for _, score := range index {
		report.BubbleLevel = tracker.Update(score)
	}

	report.CrashProbability = a.crashProbability(index.Last(), estimate)

	ensemble, err := a.simulate(ctx, series, returns, report)
	if err != nil {
		return nil, err
	}
	report.Median = ensemble.QuantilePath(0.50)
	report.Lower = ensemble.QuantilePath(0.05)
	report.Upper = ensemble.QuantilePath(0.95)

	report.Risk, err = risk.Assess(ensemble, a.cfg.Confidence, a.cfg.CrashThreshold)
	if err != nil {
		return nil, err
	}

	report.Alerts = a.buildAlerts(report)
	for _, alert := range report.Alerts {
		if alert.Level > report.OverallLevel {
			report.OverallLevel = alert.Level
		}
	}

	l.WithFields(log.Fields{
		"bubbleIndex": fmt.Sprintf("%.1f", index.Last()),
		"crashProb":   fmt.Sprintf("%.2f", report.CrashProbability),
		"alerts":      len(report.Alerts),
	}).Info("analysis complete")
	return report, nil
}

// crashProbability blends the composite index with the log-periodic
// evidence when a valid signal exists, 60/40 in favor of the index.
func (a *Analyzer) crashProbability(indexNow float64, estimate *lppl.Estimate) float64 {
	pIndex := indexNow / 100
	if pIndex > 1 {
		pIndex = 1
	}
	if estimate == nil {
		return pIndex
	}

	best := 0.0
	for _, f := range estimate.ValidFits() {
		if f.Confidence > best {
			best = f.Confidence
		}
	}
	return 0.6*pIndex + 0.4*best
}

// simulate drives the forward ensemble from the calibrated state: fractional
// noise from the Hurst estimate, regime-dependent drift and volatility from
// the fitted Markov model anchored at the FIGARCH forecast, and the fitted
// log-periodic drift when a signal exists.
func (a *Analyzer) simulate(ctx context.Context, series *types.PriceSeries, returns floats.Slice, report *Report) (*sde.Ensemble, error) {
	params := a.simulationParams(series, returns, report)
	cfg := a.cfg.Simulation
	cfg.Steps = a.cfg.Horizon
	return sde.Simulate(ctx, params, cfg)
}

func (a *Analyzer) simulationParams(series *types.PriceSeries, returns floats.Slice, report *Report) sde.Params {
	params := sde.Params{
		S0:    series.Prices.Last(),
		Drift: returns.Mean(),
		Vol:   returns.Std(),
	}
	if report.Hurst > 0 && report.Hurst < 1 {
		params.Hurst = report.Hurst
	}

	forecastVol, err := volatility.Forecast(returns, report.VolatilityParams, a.cfg.Horizon)
	if err != nil {
		report.Warnings = append(report.Warnings, err.Error())
	} else {
		params.Vol = forecastVol.Mean()
	}

	params.Regime = regimeSwitch(report, forecastVol)

	if report.CrashTime != nil {
		if fit := bestFit(report.CrashTime); fit != nil {
			params.Bubble = fit
			params.TimeOffset = float64(series.Len() - 1)
		}
	}
	return params
}

// regimeSwitch maps the fitted Markov model onto the engine's switching
// process. Per-state volatilities keep their relative structure but are
// rescaled so the current state starts at the one-step FIGARCH forecast.
func regimeSwitch(report *Report, forecastVol floats.Slice) *sde.RegimeSwitch {
	model := report.Regime
	if model == nil || model.Regimes < 2 {
		return nil
	}

	vols := make([]float64, model.Regimes)
	for j, v := range model.Variances {
		vols[j] = math.Sqrt(v)
	}
	if len(forecastVol) > 0 && vols[report.CurrentRegime] > 0 {
		scale := forecastVol[0] / vols[report.CurrentRegime]
		for j := range vols {
			vols[j] *= scale
		}
	}

	return &sde.RegimeSwitch{
		Transition: model.Transition,
		Drift:      []float64(model.Means),
		Vol:        vols,
		Initial:    report.CurrentRegime,
	}
}

func bestFit(estimate *lppl.Estimate) *lppl.Fit {
	var best *lppl.Fit
	for i := range estimate.Fits {
		f := &estimate.Fits[i]
		if !f.Valid {
			continue
		}
		if best == nil || f.Confidence > best.Confidence {
			best = f
		}
	}
	return best
}

func volumesOrNil(series *types.PriceSeries) floats.Slice {
	if series.HasVolume() {
		return series.Volumes
	}
	return nil
}

func (a *Analyzer) buildAlerts(report *Report) []Alert {
	var alerts []Alert

	indexNow := report.BubbleIndex.Last()
	switch {
	case indexNow >= 70:
		alerts = append(alerts, Alert{
			Level:    bubble.AlertCritical,
			Kind:     "BUBBLE_INDEX",
			Message:  fmt.Sprintf("bubble index at CRITICAL level: %.1f/100", indexNow),
			Priority: 1,
		})
	case indexNow >= 50:
		alerts = append(alerts, Alert{
			Level:    bubble.AlertHigh,
			Kind:     "BUBBLE_INDEX",
			Message:  fmt.Sprintf("bubble index at HIGH level: %.1f/100", indexNow),
			Priority: 2,
		})
	}

	switch {
	case report.CrashProbability > 0.7:
		alerts = append(alerts, Alert{
			Level:    bubble.AlertCritical,
			Kind:     "CRASH_PROBABILITY",
			Message:  fmt.Sprintf("crash probability %.1f%%", report.CrashProbability*100),
			Priority: 1,
		})
	case report.CrashProbability > 0.5:
		alerts = append(alerts, Alert{
			Level:    bubble.AlertHigh,
			Kind:     "CRASH_PROBABILITY",
			Message:  fmt.Sprintf("crash probability %.1f%%", report.CrashProbability*100),
			Priority: 2,
		})
	}

	if est := report.CrashTime; est != nil {
		switch {
		case est.DaysAhead <= 30:
			alerts = append(alerts, Alert{
				Level:    bubble.AlertCritical,
				Kind:     "CRASH_TIME",
				Message:  fmt.Sprintf("estimated critical time %.0f days ahead", est.DaysAhead),
				Priority: 1,
			})
		case est.DaysAhead <= 90:
			alerts = append(alerts, Alert{
				Level:    bubble.AlertHigh,
				Kind:     "CRASH_TIME",
				Message:  fmt.Sprintf("estimated critical time %.0f days ahead", est.DaysAhead),
				Priority: 2,
			})
		}
	}

	if report.Risk != nil && report.Risk.CrashProbability > 0.3 {
		alerts = append(alerts, Alert{
			Level:    bubble.AlertHigh,
			Kind:     "DRAWDOWN",
			Message:  fmt.Sprintf("%.0f%% of simulated paths breach a %.0f%% drawdown", report.Risk.CrashProbability*100, report.Risk.CrashThreshold*100),
			Priority: 2,
		})
	}

	sortAlerts(alerts)
	return alerts
}

func sortAlerts(alerts []Alert) {
	for i := 1; i < len(alerts); i++ {
		for j := i; j > 0 && alerts[j].Priority < alerts[j-1].Priority; j-- {
			alerts[j], alerts[j-1] = alerts[j-1], alerts[j]
		}
	}
}
