package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/crashradar/crashradar/pkg/bubble"
	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/forecast"
	"github.com/crashradar/crashradar/pkg/fractal"
	"github.com/crashradar/crashradar/pkg/lppl"
	"github.com/crashradar/crashradar/pkg/risk"
)

func sampleReport() *forecast.Report {
	return &forecast.Report{
		RunID:        "f6a1c8f0-0000-0000-0000-000000000000",
		GeneratedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Observations: 790,
		LastPrice:    184.32,

		Hurst:       0.63,
		Persistence: fractal.ModeratePersistence,

		BubbleIndex: floats.Slice{40, 55, 72},
		BubbleLevel: bubble.AlertCritical,

		CrashProbability: 0.74,

		CrashTime: &lppl.Estimate{
			Tc:        815,
			DaysAhead: 26,
			Policy:    lppl.ConsensusMedian,
			Fits: []lppl.Fit{
				{Method: lppl.MethodNelderMead, Tc: 812, M: 0.42, Omega: 6.8, R2: 0.97, Confidence: 0.97, Valid: true},
				{Method: lppl.MethodGrid, Tc: 818, M: 0.45, Omega: 7.1, R2: 0.95, Confidence: 0.95, Valid: true},
			},
		},

		Risk: &risk.EnsembleReport{
			Confidence:       0.95,
			VaR:              0.082,
			CVaR:             0.121,
			CrashProbability: 0.41,
			CrashThreshold:   0.20,
			MeanDrawdown:     0.09,
			WorstDrawdown:    0.34,
		},

		Alerts: []forecast.Alert{
			{Level: bubble.AlertCritical, Kind: "BUBBLE_INDEX", Message: "bubble index at CRITICAL level: 72.0/100", Priority: 1},
			{Level: bubble.AlertHigh, Kind: "DRAWDOWN", Message: "41% of simulated paths breach a 20% drawdown", Priority: 2},
		},
		OverallLevel: bubble.AlertCritical,
		Warnings:     []string{"figarch MLE did not converge within 500 iterations"},
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, sampleReport())
	out := buf.String()

	assert.Contains(t, out, "f6a1c8f0")
	assert.Contains(t, out, "$184.32")
	assert.Contains(t, out, "0.630")
	assert.Contains(t, out, "nelder_mead")
	// go-pretty upper-cases footer cells
	assert.Contains(t, out, "CONSENSUS (MEDIAN)")
	assert.Contains(t, out, "Simulated Risk (95% confidence)")
	assert.NotContains(t, out, "%!")
	assert.Contains(t, out, "CVaR")
	assert.Contains(t, out, "BUBBLE_INDEX")
	assert.Contains(t, out, "figarch MLE")
}

func TestRender_noSignalNoAlerts(t *testing.T) {
	r := sampleReport()
	r.CrashTime = nil
	r.Alerts = nil
	r.Warnings = nil

	var buf bytes.Buffer
	Render(&buf, r)
	out := buf.String()

	assert.NotContains(t, out, "Critical Time Estimates")
	assert.Contains(t, out, "no active alerts")
}
