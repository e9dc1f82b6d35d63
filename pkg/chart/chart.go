package chart

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/forecast"
	"github.com/crashradar/crashradar/pkg/types"
)

var (
	priceColor = drawing.Color{R: 41, G: 98, B: 255, A: 255}
	indexColor = drawing.Color{R: 216, G: 27, B: 96, A: 255}
	bandColor  = drawing.Color{R: 120, G: 144, B: 156, A: 80}
)

// RenderOverview draws the price history with the bubble index on the
// secondary axis, as a PNG.
func RenderOverview(w io.Writer, series *types.PriceSeries, index floats.Slice) error {
	if series.Len() == 0 || len(index) != series.Len() {
		return errors.New("chart: index must align with the price series")
	}

	graph := chart.Chart{
		Title:  "Price and Bubble Index",
		Width:  1280,
		Height: 720,
		YAxis: chart.YAxis{
			Name: "price",
		},
		YAxisSecondary: chart.YAxis{
			Name:  "bubble index",
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "price",
				XValues: series.Times,
				YValues: series.Prices,
				Style:   chart.Style{StrokeColor: priceColor, StrokeWidth: 1.5},
			},
			chart.TimeSeries{
				Name:    "bubble index",
				XValues: series.Times,
				YValues: index,
				YAxis:   chart.YAxisSecondary,
				Style:   chart.Style{StrokeColor: indexColor, StrokeWidth: 1.0},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return errors.Wrap(graph.Render(chart.PNG, w), "render overview chart")
}

// RenderForecast draws the tail of the observed prices followed by the
// simulated median path and its quantile band.
func RenderForecast(w io.Writer, series *types.PriceSeries, r *forecast.Report, tail int) error {
	if r.Median == nil {
		return errors.New("chart: report carries no forecast fan")
	}
	if tail <= 0 || tail > series.Len() {
		tail = series.Len()
	}

	histTimes := series.Times[series.Len()-tail:]
	histPrices := series.Prices.Tail(tail)

	last := histTimes[len(histTimes)-1]
	futTimes := make([]time.Time, len(r.Median))
	for i := range futTimes {
		futTimes[i] = last.AddDate(0, 0, i)
	}

	graph := chart.Chart{
		Title:  "Price Forecast",
		Width:  1280,
		Height: 720,
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "observed",
				XValues: histTimes,
				YValues: histPrices,
				Style:   chart.Style{StrokeColor: priceColor, StrokeWidth: 1.5},
			},
			chart.TimeSeries{
				Name:    "median forecast",
				XValues: futTimes,
				YValues: r.Median,
				Style:   chart.Style{StrokeColor: indexColor, StrokeWidth: 1.5, StrokeDashArray: []float64{4, 2}},
			},
			chart.TimeSeries{
				Name:    "p5",
				XValues: futTimes,
				YValues: r.Lower,
				Style:   chart.Style{StrokeColor: bandColor, StrokeWidth: 1.0},
			},
			chart.TimeSeries{
				Name:    "p95",
				XValues: futTimes,
				YValues: r.Upper,
				Style:   chart.Style{StrokeColor: bandColor, StrokeWidth: 1.0},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return errors.Wrap(graph.Render(chart.PNG, w), "render forecast chart")
}
