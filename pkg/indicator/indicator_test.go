package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestRSI(t *testing.T) {
	inc := &RSI{Window: 14}
	for i := 0; i < 30; i++ {
		inc.Update(100 + float64(i))
	}
	require.NotEmpty(t, inc.Values)
	assert.Equal(t, 100.0, inc.Last(), "monotone gains max out the index")

	dec := &RSI{Window: 14}
	for i := 0; i < 30; i++ {
		dec.Update(100 - float64(i))
	}
	assert.Less(t, dec.Last(), 10.0)

	for _, v := range inc.Values {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}

	short := &RSI{Window: 14}
	short.Update(100)
	short.Update(101)
	assert.Empty(t, short.Values, "no reading before the window fills")
}

func TestMACD(t *testing.T) {
	flat := &MACD{ShortWindow: 12, LongWindow: 26, SignalWindow: 9}
	for i := 0; i < 60; i++ {
		flat.Update(100)
	}
	assert.InDelta(t, 0.0, flat.Last(), 1e-12)

	trending := &MACD{ShortWindow: 12, LongWindow: 26, SignalWindow: 9}
	for i := 0; i < 60; i++ {
		trending.Update(100 + 2*float64(i))
	}
	assert.Greater(t, trending.Last(), 0.0, "uptrend puts the fast average above the slow one")
	assert.Len(t, trending.Histogram, 60)
}

func TestBOLL(t *testing.T) {
	inc := &BOLL{Window: 20, K: 2}
	for i := 0; i < 40; i++ {
		inc.Update(50)
	}
	require.NotEmpty(t, inc.SMA)
	assert.Equal(t, 50.0, inc.SMA.Last())
	assert.Equal(t, inc.UpBand.Last(), inc.DownBand.Last(), "zero variance collapses the bands")

	noisy := &BOLL{Window: 20, K: 2}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		noisy.Update(50 + rng.NormFloat64())
	}
	assert.Greater(t, noisy.UpBand.Last(), noisy.SMA.Last())
	assert.Less(t, noisy.DownBand.Last(), noisy.SMA.Last())
}

func TestEWMVol(t *testing.T) {
	flat := &EWMVol{Lambda: 0.94}
	for i := 0; i < 50; i++ {
		flat.Update(100)
	}
	assert.Equal(t, 0.0, flat.Last())

	calm := &EWMVol{Lambda: 0.94}
	wild := &EWMVol{Lambda: 0.94}
	rng := rand.New(rand.NewSource(4))
	price1, price2 := 100.0, 100.0
	for i := 0; i < 500; i++ {
		z := rng.NormFloat64()
		price1 *= 1 + 0.005*z
		price2 *= 1 + 0.03*z
		calm.Update(price1)
		wild.Update(price2)
	}
	assert.Greater(t, wild.Last(), 3*calm.Last())
}

func TestScores(t *testing.T) {
	assert.Equal(t, 0.0, TrendScore(99, 100, 1), "below the average scores zero")
	assert.Greater(t, TrendScore(103, 100, 1), TrendScore(101, 100, 1))
	assert.Less(t, TrendScore(110, 100, 1), 1.0)

	assert.Equal(t, 0.0, VolatilityScore(0.01, 0.02))
	assert.Greater(t, VolatilityScore(0.06, 0.02), VolatilityScore(0.03, 0.02))

	assert.Less(t, VolumeScore(0), 0.2)
	assert.Greater(t, VolumeScore(4), 0.8)

	assert.Equal(t, 0.0, MomentumScore(40))
	assert.Equal(t, 0.0, MomentumScore(50))
	assert.InDelta(t, 0.25, MomentumScore(75), 1e-12)
	assert.InDelta(t, 1.0, MomentumScore(100), 1e-12)
}
