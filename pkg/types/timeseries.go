package types

import (
	"time"

	"github.com/pkg/errors"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
)

// TimeSeries is an ordered sequence of (timestamp, value) pairs. Timestamps
// are strictly increasing; irregular spacing is tolerated, fixed-step
// algorithms address observations by index.
type TimeSeries struct {
	Times  []time.Time
	Values floats.Slice
}

func NewTimeSeries(times []time.Time, values floats.Slice) (*TimeSeries, error) {
	if len(times) != len(values) {
		return nil, errors.Errorf("timeseries: %d timestamps but %d values", len(times), len(values))
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return nil, errors.Errorf("timeseries: timestamps not strictly increasing at index %d", i)
		}
	}
	return &TimeSeries{Times: times, Values: values}, nil
}

func (ts *TimeSeries) Len() int {
	return len(ts.Values)
}

func (ts *TimeSeries) Append(t time.Time, v float64) error {
	if n := len(ts.Times); n > 0 && !t.After(ts.Times[n-1]) {
		return errors.Errorf("timeseries: timestamp %s not after %s", t, ts.Times[n-1])
	}
	ts.Times = append(ts.Times, t)
	ts.Values.Push(v)
	return nil
}

// Window returns the sub-series covering [from, to) by index. The returned
// series shares the underlying storage.
func (ts *TimeSeries) Window(from, to int) *TimeSeries {
	if from < 0 {
		from = 0
	}
	if to > ts.Len() {
		to = ts.Len()
	}
	return &TimeSeries{Times: ts.Times[from:to], Values: ts.Values[from:to]}
}

// PriceSeries couples a price series with its (optional) traded volume.
type PriceSeries struct {
	Times   []time.Time
	Prices  floats.Slice
	Volumes floats.Slice
}

func (p *PriceSeries) Len() int {
	return len(p.Prices)
}

func (p *PriceSeries) Append(t time.Time, price, volume float64) error {
	if n := len(p.Times); n > 0 && !t.After(p.Times[n-1]) {
		return errors.Errorf("priceseries: timestamp %s not after %s", t, p.Times[n-1])
	}
	p.Times = append(p.Times, t)
	p.Prices.Push(price)
	p.Volumes.Push(volume)
	return nil
}

// Returns computes the log-return series of the prices.
func (p *PriceSeries) Returns() floats.Slice {
	return floats.LogReturns(p.Prices)
}

func (p *PriceSeries) HasVolume() bool {
	return len(p.Volumes) == len(p.Prices) && len(p.Volumes) > 0
}
