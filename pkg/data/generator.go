package data

import (
	"math"
	"time"

	"golang.org/x/exp/rand"

	"github.com/crashradar/crashradar/pkg/types"
)

// SyntheticConfig parameterizes the demonstration series: a quiet drift
// phase, an optional superexponential bubble with log-periodic oscillation,
// and an optional crash day.
type SyntheticConfig struct {
	Days  int     `yaml:"days"`
	S0    float64 `yaml:"s0"`
	Drift float64 `yaml:"drift"`
	Vol   float64 `yaml:"vol"`

	WithBubble bool `yaml:"withBubble"`
	WithCrash  bool `yaml:"withCrash"`

	// The bubble accelerates between BubbleStart and BubbleEnd towards the
	// critical day, with the crash landing on CrashDay.
	BubbleStart  int     `yaml:"bubbleStart"`
	BubbleEnd    int     `yaml:"bubbleEnd"`
	CriticalTime float64 `yaml:"criticalTime"`
	Omega        float64 `yaml:"omega"`
	Amplitude    float64 `yaml:"amplitude"`
	CrashDay     int     `yaml:"crashDay"`

	BaseVolume float64   `yaml:"baseVolume"`
	Start      time.Time `yaml:"start"`
	Seed       uint64    `yaml:"seed"`
}

func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Days:         1000,
		S0:           100,
		Drift:        0.0005,
		Vol:          0.02,
		WithBubble:   true,
		WithCrash:    true,
		BubbleStart:  600,
		BubbleEnd:    800,
		CriticalTime: 820,
		Omega:        7,
		Amplitude:    0.003,
		CrashDay:     800,
		BaseVolume:   1e6,
		Start:        time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Seed:         42,
	}
}

// GenerateSynthetic builds a daily price and volume history. Inside the
// bubble window the drift picks up a log-periodic acceleration term keyed to
// the critical day and volatility rises by half; on the crash day the drift
// drops sharply with volatility tripled. Volumes track realized volatility.
func GenerateSynthetic(cfg SyntheticConfig) *types.PriceSeries {
	rng := rand.New(rand.NewSource(cfg.Seed))

	prices := make([]float64, cfg.Days)
	prices[0] = cfg.S0
	for i := 1; i < cfg.Days; i++ {
		mu := cfg.Drift
		sigma := cfg.Vol

		if cfg.WithBubble && i > cfg.BubbleStart && i < cfg.BubbleEnd {
			dt := math.Max(cfg.CriticalTime-float64(i), 1)
			denom := math.Max(math.Pow(cfg.CriticalTime-float64(i), 0.3), 0.01)
			mu += cfg.Amplitude * math.Cos(cfg.Omega*math.Log(dt)) / denom
			sigma *= 1.5
		}
		if cfg.WithCrash && i == cfg.CrashDay {
			mu = -0.15
			sigma *= 3
		}

		prices[i] = prices[i-1] * math.Exp(mu+sigma*rng.NormFloat64())
	}

	series := &types.PriceSeries{}
	t := cfg.Start
	for i := 0; i < cfg.Days; i++ {
		volume := cfg.BaseVolume
		if i > 0 {
			ret := math.Log(prices[i] / prices[i-1])
			volume = cfg.BaseVolume * (1 + 2*math.Abs(ret))
		}
		volume += rng.NormFloat64() * cfg.BaseVolume * 0.1
		if volume < 0 {
			volume = 0
		}
		// generated dates are strictly increasing, Append cannot fail
		_ = series.Append(t, prices[i], volume)
		t = t.AddDate(0, 0, 1)
	}
	return series
}
