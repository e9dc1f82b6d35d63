package floats

import (
	"math"
)

type Slice []float64

func New(a ...float64) Slice {
	return Slice(a)
}

func (s *Slice) Push(v float64) {
	*s = append(*s, v)
}

func (s *Slice) Pop(i int64) (v float64) {
	v = (*s)[i]
	*s = append((*s)[:i], (*s)[i+1:]...)
	return v
}

func (s Slice) Max() float64 {
	m := -math.MaxFloat64
	for _, v := range s {
		m = math.Max(m, v)
	}
	return m
}

func (s Slice) Min() float64 {
	m := math.MaxFloat64
	for _, v := range s {
		m = math.Min(m, v)
	}
	return m
}

func (s Slice) Sum() (sum float64) {
	for _, v := range s {
		sum += v
	}
	return sum
}

func (s Slice) Mean() (mean float64) {
	length := len(s)
	if length == 0 {
		return 0.0
	}
	return s.Sum() / float64(length)
}

// Var returns the sample variance.
func (s Slice) Var() float64 {
	if len(s) < 2 {
		return 0.0
	}
	mean := s.Mean()
	var sum float64
	for _, v := range s {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(s)-1)
}

func (s Slice) Std() float64 {
	return math.Sqrt(s.Var())
}

func (s Slice) Tail(size int) Slice {
	length := len(s)
	if length <= size {
		win := make(Slice, length)
		copy(win, s)
		return win
	}

	win := make(Slice, size)
	copy(win, s[length-size:])
	return win
}

func (s Slice) Diff() Slice {
	var values Slice
	for i, v := range s {
		if i == 0 {
			values.Push(0)
			continue
		}
		values.Push(v - s[i-1])
	}
	return values
}

func (s Slice) CumSum() Slice {
	var sum float64
	var values Slice
	for _, v := range s {
		sum += v
		values.Push(sum)
	}
	return values
}

func (s Slice) PositiveValuesOrZero() Slice {
	var values Slice
	for _, v := range s {
		values.Push(math.Max(v, 0))
	}
	return values
}

func (s Slice) NegativeValuesOrZero() Slice {
	var values Slice
	for _, v := range s {
		values.Push(math.Min(v, 0))
	}
	return values
}

func (s Slice) Abs() Slice {
	var values Slice
	for _, v := range s {
		values.Push(math.Abs(v))
	}
	return values
}

func (s Slice) MulScalar(x float64) Slice {
	var values Slice
	for _, v := range s {
		values.Push(v * x)
	}
	return values
}

func (s Slice) DivScalar(x float64) Slice {
	var values Slice
	for _, v := range s {
		values.Push(v / x)
	}
	return values
}

func (s Slice) AddScalar(x float64) Slice {
	var values Slice
	for _, v := range s {
		values.Push(v + x)
	}
	return values
}

func (s Slice) Sub(b Slice) Slice {
	var values Slice
	for i, v := range s {
		values.Push(v - b[i])
	}
	return values
}

func (s Slice) ElementwiseProduct(other Slice) Slice {
	var values Slice
	for i, v := range s {
		values.Push(v * other[i])
	}
	return values
}

func (s Slice) Dot(other Slice) float64 {
	return s.ElementwiseProduct(other).Sum()
}

func (s Slice) Last() float64 {
	length := len(s)
	if length > 0 {
		return s[length-1]
	}
	return 0.0
}

func (s Slice) Index(i int) float64 {
	length := len(s)
	if length-i < 0 || i < 0 {
		return 0.0
	}
	return s[length-i-1]
}

func (s Slice) Length() int {
	return len(s)
}

func (s Slice) Copy() Slice {
	out := make(Slice, len(s))
	copy(out, s)
	return out
}
