package floats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// LogReturns returns the log-return series of a price series. The result is
// one element shorter than the input.
func LogReturns(prices Slice) Slice {
	var rets Slice
	for i := 1; i < len(prices); i++ {
		rets.Push(math.Log(prices[i] / prices[i-1]))
	}
	return rets
}

// Demean subtracts the mean from every element.
func Demean(arr Slice) Slice {
	mean := arr.Mean()
	var out Slice
	for _, v := range arr {
		out.Push(v - mean)
	}
	return out
}

// Percentile returns the p-th percentile (p in [0, 100]) of arr using linear
// interpolation between closest ranks. arr is not modified.
func Percentile(arr Slice, p float64) float64 {
	if len(arr) == 0 {
		return 0.0
	}
	sorted := arr.Copy()
	sort.Float64s(sorted)
	return stat.Quantile(p/100.0, stat.Empirical, sorted, nil)
}

// Zscore standardizes arr by its own mean and standard deviation.
func Zscore(arr Slice) Slice {
	mean := arr.Mean()
	std := arr.Std()
	if std == 0 {
		std = 1
	}
	var out Slice
	for _, v := range arr {
		out.Push((v - mean) / std)
	}
	return out
}

// Linspace returns n evenly spaced points over [start, stop], inclusive.
func Linspace(start, stop float64, n int) Slice {
	if n == 1 {
		return Slice{start}
	}
	out := make(Slice, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// RollingApply slides a window of the given size over arr and applies f to
// each full window. The first window-1 positions are filled with the first
// computed value so the output length matches the input.
func RollingApply(arr Slice, window int, f func(Slice) float64) Slice {
	out := make(Slice, len(arr))
	if len(arr) < window {
		return out
	}
	for i := window; i <= len(arr); i++ {
		out[i-1] = f(arr[i-window : i])
	}
	for i := 0; i < window-1; i++ {
		out[i] = out[window-1]
	}
	return out
}

// Median returns the median of arr. arr is not modified.
func Median(arr Slice) float64 {
	if len(arr) == 0 {
		return 0.0
	}
	sorted := arr.Copy()
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return 0.5 * (sorted[n/2-1] + sorted[n/2])
}
