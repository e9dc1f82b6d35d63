package indicator

import (
	"math"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
)

// RSI implements the Wilder relative strength index over closing prices.
type RSI struct {
	Window int
	Values floats.Slice

	prices          floats.Slice
	previousAvgGain float64
	previousAvgLoss float64
}

func (inc *RSI) Update(price float64) {
	inc.prices.Push(price)

	if len(inc.prices) < inc.Window+1 {
		return
	}

	var avgGain, avgLoss float64
	if len(inc.prices) == inc.Window+1 {
		diff := inc.prices.Diff()
		avgGain = diff.PositiveValuesOrZero().Abs().Sum() / float64(inc.Window)
		avgLoss = diff.NegativeValuesOrZero().Abs().Sum() / float64(inc.Window)
	} else {
		difference := price - inc.prices[len(inc.prices)-2]
		currentGain := math.Max(difference, 0)
		currentLoss := -math.Min(difference, 0)

		avgGain = (inc.previousAvgGain*float64(inc.Window-1) + currentGain) / float64(inc.Window)
		avgLoss = (inc.previousAvgLoss*float64(inc.Window-1) + currentLoss) / float64(inc.Window)
	}

	if avgLoss == 0 {
		inc.Values.Push(100)
	} else {
		rs := avgGain / avgLoss
		inc.Values.Push(100 - (100 / (1 + rs)))
	}

	inc.previousAvgGain = avgGain
	inc.previousAvgLoss = avgLoss
}

func (inc *RSI) Last() float64 {
	return inc.Values.Last()
}

// MACD tracks the moving average convergence divergence line, its signal
// line and the histogram between them.
type MACD struct {
	ShortWindow  int
	LongWindow   int
	SignalWindow int

	Values     floats.Slice
	SignalLine floats.Slice
	Histogram  floats.Slice

	shortEMA  ewmaState
	longEMA   ewmaState
	signalEMA ewmaState
}

func (inc *MACD) Update(price float64) {
	short := inc.shortEMA.update(price, inc.ShortWindow)
	long := inc.longEMA.update(price, inc.LongWindow)
	macd := short - long
	signal := inc.signalEMA.update(macd, inc.SignalWindow)

	inc.Values.Push(macd)
	inc.SignalLine.Push(signal)
	inc.Histogram.Push(macd - signal)
}

func (inc *MACD) Last() float64 {
	return inc.Values.Last()
}

type ewmaState struct {
	value  float64
	primed bool
}

func (s *ewmaState) update(v float64, window int) float64 {
	if !s.primed {
		s.value = v
		s.primed = true
		return v
	}
	multiplier := 2.0 / float64(window+1)
	s.value = v*multiplier + s.value*(1-multiplier)
	return s.value
}

// BOLL tracks a simple moving average band of K standard deviations.
type BOLL struct {
	Window int
	K      float64

	SMA      floats.Slice
	StdDev   floats.Slice
	UpBand   floats.Slice
	DownBand floats.Slice

	prices floats.Slice
}

func (inc *BOLL) Update(price float64) {
	inc.prices.Push(price)
	if len(inc.prices) < inc.Window {
		return
	}

	window := inc.prices.Tail(inc.Window)
	mean := window.Mean()
	std := window.Std()

	inc.SMA.Push(mean)
	inc.StdDev.Push(std)
	inc.UpBand.Push(mean + inc.K*std)
	inc.DownBand.Push(mean - inc.K*std)
}

// EWMVol is the RiskMetrics exponentially weighted volatility of log
// returns.
type EWMVol struct {
	Lambda float64
	Values floats.Slice

	lastPrice float64
	variance  float64
	primed    bool
}

func (inc *EWMVol) Update(price float64) {
	if !inc.primed {
		inc.lastPrice = price
		inc.primed = true
		return
	}
	r := math.Log(price / inc.lastPrice)
	inc.lastPrice = price

	lambda := inc.Lambda
	if lambda == 0 {
		lambda = 0.94
	}
	inc.variance = lambda*inc.variance + (1-lambda)*r*r
	inc.Values.Push(math.Sqrt(inc.variance))
}

func (inc *EWMVol) Last() float64 {
	return inc.Values.Last()
}
