package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leekchan/accounting"

	"github.com/crashradar/crashradar/pkg/bubble"
	"github.com/crashradar/crashradar/pkg/forecast"
)

var priceFormatter = accounting.Accounting{Symbol: "$", Precision: 2}

var levelColors = map[bubble.AlertLevel]*color.Color{
	bubble.AlertLow:      color.New(color.FgGreen),
	bubble.AlertModerate: color.New(color.FgYellow),
	bubble.AlertHigh:     color.New(color.FgHiYellow, color.Bold),
	bubble.AlertCritical: color.New(color.FgHiRed, color.Bold),
}

func colorLevel(l bubble.AlertLevel) string {
	if c, ok := levelColors[l]; ok {
		return c.Sprint(l.String())
	}
	return l.String()
}

// Render writes the full human-readable report.
func Render(w io.Writer, r *forecast.Report) {
	fmt.Fprintf(w, "run %s at %s\n\n", r.RunID, r.GeneratedAt.Format("2006-01-02 15:04:05"))

	renderSummary(w, r)
	if r.CrashTime != nil {
		renderCrashTime(w, r)
	}
	renderRisk(w, r)
	renderAlerts(w, r)
}

func renderSummary(w io.Writer, r *forecast.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Market Diagnostics")
	t.AppendRows([]table.Row{
		{"observations", r.Observations},
		{"last price", priceFormatter.FormatMoney(r.LastPrice)},
		{"hurst exponent", fmt.Sprintf("%.3f (%s)", r.Hurst, r.Persistence)},
		{"current regime", regimeLabel(r)},
		{"conditional volatility", fmt.Sprintf("%.4f", r.CurrentVolatility)},
		{"bubble index", fmt.Sprintf("%.1f/100 [%s]", r.BubbleIndex.Last(), colorLevel(r.BubbleLevel))},
		{"crash probability", fmt.Sprintf("%.1f%%", r.CrashProbability*100)},
	})
	t.Render()
	fmt.Fprintln(w)
}

func regimeLabel(r *forecast.Report) string {
	if r.Regime == nil || r.CurrentRegime >= len(r.RegimeLabels) {
		return "unknown"
	}
	return string(r.RegimeLabels[r.CurrentRegime])
}

func renderCrashTime(w io.Writer, r *forecast.Report) {
	est := r.CrashTime

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Critical Time Estimates")
	t.AppendHeader(table.Row{"method", "tc (days ahead)", "m", "omega", "r2", "confidence", "valid"})
	for _, f := range est.Fits {
		t.AppendRow(table.Row{
			string(f.Method),
			fmt.Sprintf("%.1f", f.Tc-float64(r.Observations-1)),
			fmt.Sprintf("%.3f", f.M),
			fmt.Sprintf("%.2f", f.Omega),
			fmt.Sprintf("%.3f", f.R2),
			fmt.Sprintf("%.2f", f.Confidence),
			f.Valid,
		})
	}
	t.AppendFooter(table.Row{
		"consensus (" + string(est.Policy) + ")",
		fmt.Sprintf("%.1f", est.DaysAhead), "", "", "",
		lowConfidenceTag(est.LowConfidence), "",
	})
	t.Render()
	fmt.Fprintln(w)
}

func lowConfidenceTag(low bool) string {
	if low {
		return color.YellowString("LOW CONFIDENCE")
	}
	return ""
}

func renderRisk(w io.Writer, r *forecast.Report) {
	if r.Risk == nil {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Simulated Risk (%.0f%% confidence)", r.Risk.Confidence*100)
	t.AppendRows([]table.Row{
		{"VaR", fmt.Sprintf("%.2f%%", r.Risk.VaR*100)},
		{"CVaR", fmt.Sprintf("%.2f%%", r.Risk.CVaR*100)},
		{"mean drawdown", fmt.Sprintf("%.2f%%", r.Risk.MeanDrawdown*100)},
		{"worst drawdown", fmt.Sprintf("%.2f%%", r.Risk.WorstDrawdown*100)},
		{fmt.Sprintf("P(drawdown > %.0f%%)", r.Risk.CrashThreshold*100), fmt.Sprintf("%.1f%%", r.Risk.CrashProbability*100)},
	})
	t.Render()
	fmt.Fprintln(w)
}

func renderAlerts(w io.Writer, r *forecast.Report) {
	if len(r.Alerts) == 0 {
		fmt.Fprintln(w, color.GreenString("no active alerts"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Alerts: overall " + colorLevel(r.OverallLevel))
	t.AppendHeader(table.Row{"priority", "level", "kind", "message"})
	for _, a := range r.Alerts {
		t.AppendRow(table.Row{a.Priority, colorLevel(a.Level), a.Kind, a.Message})
	}
	t.Render()

	for _, warning := range r.Warnings {
		fmt.Fprintln(w, color.YellowString("warning: %s", warning))
	}
}
