package bubble

import (
	"math"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/indicator"
	"github.com/crashradar/crashradar/pkg/types"
)

// Components are the normalized inputs to the composite index, each already
// squashed into [0, 1]. Out-of-range values are clamped before weighting.
type Components struct {
	Trend      float64
	Volatility float64
	Momentum   float64
	Volume     float64
}

// Weights combines the components. They must sum to one.
type Weights struct {
	Trend      float64 `yaml:"trend"`
	Volatility float64 `yaml:"volatility"`
	Momentum   float64 `yaml:"momentum"`
	Volume     float64 `yaml:"volume"`
}

func DefaultWeights() Weights {
	return Weights{
		Trend:      0.35,
		Volatility: 0.30,
		Volume:     0.20,
		Momentum:   0.15,
	}
}

func (w Weights) Validate() error {
	for _, v := range []float64{w.Trend, w.Volatility, w.Momentum, w.Volume} {
		if v < 0 {
			return &types.InvalidParameterError{Parameter: "weights", Reason: "must be non-negative"}
		}
	}
	sum := w.Trend + w.Volatility + w.Momentum + w.Volume
	if math.Abs(sum-1) > 1e-9 {
		return &types.InvalidParameterError{Parameter: "weights", Reason: "must sum to one"}
	}
	return nil
}

// Compute maps the weighted components onto the [0, 100] index scale.
func Compute(c Components, w Weights) (float64, error) {
	if err := w.Validate(); err != nil {
		return 0, err
	}
	score := w.Trend*clamp01(c.Trend) +
		w.Volatility*clamp01(c.Volatility) +
		w.Momentum*clamp01(c.Momentum) +
		w.Volume*clamp01(c.Volume)
	return 100 * score, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// AlertLevel is the discrete warning band of an index reading.
type AlertLevel int

const (
	AlertLow AlertLevel = iota
	AlertModerate
	AlertHigh
	AlertCritical
)

func (l AlertLevel) String() string {
	switch l {
	case AlertLow:
		return "LOW"
	case AlertModerate:
		return "MODERATE"
	case AlertHigh:
		return "HIGH"
	case AlertCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// Classify maps an index value onto its alert band. The band edges are
// half-open: a reading exactly on an edge belongs to the higher band.
func Classify(score float64) AlertLevel {
	switch {
	case score >= 70:
		return AlertCritical
	case score >= 50:
		return AlertHigh
	case score >= 30:
		return AlertModerate
	default:
		return AlertLow
	}
}

// Hysteresis makes downgrades sticky: once a level is reached, the score
// must fall Margin points below the band edge before the level drops.
// The zero value disables it.
type Hysteresis struct {
	Enabled bool    `yaml:"enabled"`
	Margin  float64 `yaml:"margin"`
}

// Tracker classifies a stream of index readings, optionally with
// hysteresis.
type Tracker struct {
	Hysteresis Hysteresis

	level  AlertLevel
	primed bool
}

func (t *Tracker) Update(score float64) AlertLevel {
	next := Classify(score)
	if !t.Hysteresis.Enabled || !t.primed {
		t.level = next
		t.primed = true
		return t.level
	}

	if next >= t.level {
		t.level = next
		return t.level
	}

	// dropping: require the score to clear the edge by the margin
	edge := bandFloor(t.level)
	if score < edge-t.Hysteresis.Margin {
		t.level = next
	}
	return t.level
}

func bandFloor(l AlertLevel) float64 {
	switch l {
	case AlertCritical:
		return 70
	case AlertHigh:
		return 50
	case AlertModerate:
		return 30
	}
	return 0
}

// SeriesConfig drives FromSeries.
type SeriesConfig struct {
	Weights Weights `yaml:"weights"`

	// TrendWindow sizes the moving-average band, VolWindow the volatility
	// baseline lookback, RSIWindow the momentum oscillator.
	TrendWindow int `yaml:"trendWindow"`
	VolWindow   int `yaml:"volWindow"`
	RSIWindow   int `yaml:"rsiWindow"`
}

func DefaultSeriesConfig() SeriesConfig {
	return SeriesConfig{
		Weights:     DefaultWeights(),
		TrendWindow: 50,
		VolWindow:   100,
		RSIWindow:   14,
	}
}

// FromSeries computes the index over a whole price history. Volumes may be
// nil, in which case the volume component contributes zero and the other
// weights are renormalized. The output is aligned to the input length, with
// zeros until the slowest window fills.
func FromSeries(prices, volumes floats.Slice, cfg SeriesConfig) (floats.Slice, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	need := cfg.TrendWindow
	if cfg.VolWindow > need {
		need = cfg.VolWindow
	}
	if len(prices) < need+1 {
		return nil, &types.InsufficientDataError{Method: "bubble index", Need: need + 1, Got: len(prices)}
	}
	if volumes != nil && len(volumes) != len(prices) {
		return nil, &types.InvalidParameterError{Parameter: "volumes", Reason: "length mismatch with prices"}
	}

	w := cfg.Weights
	if volumes == nil {
		rescale := 1 / (w.Trend + w.Volatility + w.Momentum)
		w = Weights{
			Trend:      w.Trend * rescale,
			Volatility: w.Volatility * rescale,
			Momentum:   w.Momentum * rescale,
		}
	}

	boll := &indicator.BOLL{Window: cfg.TrendWindow, K: 2}
	vol := &indicator.EWMVol{Lambda: 0.94}
	rsi := &indicator.RSI{Window: cfg.RSIWindow}

	out := make(floats.Slice, len(prices))
	var volBaseline floats.Slice

	for i, p := range prices {
		boll.Update(p)
		vol.Update(p)
		rsi.Update(p)

		if len(boll.SMA) == 0 || len(vol.Values) < cfg.VolWindow || len(rsi.Values) == 0 {
			continue
		}
		volBaseline = vol.Values.Tail(cfg.VolWindow)

		c := Components{
			Trend:      indicator.TrendScore(p, boll.SMA.Last(), boll.StdDev.Last()),
			Volatility: indicator.VolatilityScore(vol.Last(), floats.Median(volBaseline)),
			Momentum:   indicator.MomentumScore(rsi.Last()),
		}
		if volumes != nil {
			window := volumes[:i+1]
			if len(window) > cfg.VolWindow {
				window = window[len(window)-cfg.VolWindow:]
			}
			z := (volumes[i] - window.Mean()) / nonZero(window.Std())
			c.Volume = indicator.VolumeScore(z)
		}

		score, err := Compute(c, w)
		if err != nil {
			return nil, err
		}
		out[i] = score
	}
	return out, nil
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
