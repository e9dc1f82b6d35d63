package floats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlice_basicStats(t *testing.T) {
	s := New(1, 2, 3, 4, 5)
	assert.Equal(t, 15.0, s.Sum())
	assert.Equal(t, 3.0, s.Mean())
	assert.Equal(t, 5.0, s.Max())
	assert.Equal(t, 1.0, s.Min())
	assert.InDelta(t, 2.5, s.Var(), 1e-12)
	assert.Equal(t, 5.0, s.Last())
	assert.Equal(t, 4.0, s.Index(1))
}

func TestSlice_Diff(t *testing.T) {
	s := New(1, 3, 6, 10)
	assert.Equal(t, New(0, 2, 3, 4), s.Diff())
}

func TestSlice_CumSum(t *testing.T) {
	s := New(1, 2, 3)
	assert.Equal(t, New(1, 3, 6), s.CumSum())
}

func TestLogReturns(t *testing.T) {
	prices := New(100, 110, 99)
	rets := LogReturns(prices)
	assert.Len(t, rets, 2)
	assert.InDelta(t, 0.0953101798, rets[0], 1e-9)
	assert.InDelta(t, -0.1053605157, rets[1], 1e-9)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, Median(New(5, 1, 3)))
	assert.Equal(t, 2.5, Median(New(4, 1, 2, 3)))
}

func TestRollingApply(t *testing.T) {
	s := New(1, 2, 3, 4, 5)
	out := RollingApply(s, 2, func(w Slice) float64 { return w.Mean() })
	assert.Equal(t, New(1.5, 1.5, 2.5, 3.5, 4.5), out)
}

func TestLinspace(t *testing.T) {
	s := Linspace(0, 1, 5)
	assert.Equal(t, New(0, 0.25, 0.5, 0.75, 1.0), s)
}
