package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
)

func day(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func TestNewTimeSeries_rejectsNonIncreasingTimestamps(t *testing.T) {
	_, err := NewTimeSeries([]time.Time{day(0), day(2), day(1)}, floats.New(1, 2, 3))
	assert.Error(t, err)

	_, err = NewTimeSeries([]time.Time{day(0), day(0)}, floats.New(1, 2))
	assert.Error(t, err)
}

func TestTimeSeries_Append(t *testing.T) {
	ts, err := NewTimeSeries([]time.Time{day(0)}, floats.New(100))
	require.NoError(t, err)

	assert.NoError(t, ts.Append(day(1), 101))
	assert.Error(t, ts.Append(day(1), 102))
	assert.Equal(t, 2, ts.Len())
}

func TestPriceSeries_Returns(t *testing.T) {
	p := &PriceSeries{
		Times:  []time.Time{day(0), day(1), day(2)},
		Prices: floats.New(100, 105, 100),
	}
	rets := p.Returns()
	require.Len(t, rets, 2)
	assert.InDelta(t, 0.04879, rets[0], 1e-4)
	assert.False(t, p.HasVolume())
}
