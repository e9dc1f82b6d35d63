package fractal

import (
	"math"

	"github.com/pkg/errors"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
)

// Operator selects the fractional-derivative discretization.
type Operator string

const (
	// Caputo differentiates to the next integer order first, then applies a
	// fractional integral. Preferred when initial conditions matter.
	Caputo Operator = "caputo"
	// RiemannLiouville applies the fractional integral first, then the
	// integer-order derivative.
	RiemannLiouville Operator = "riemann_liouville"
	// GrunwaldLetnikov is the direct finite-difference discretization with a
	// truncated binomial-coefficient memory kernel.
	GrunwaldLetnikov Operator = "grunwald_letnikov"
)

// DefaultTruncation bounds the Grunwald-Letnikov memory kernel. Longer
// kernels buy memory depth at linear extra cost per point.
const DefaultTruncation = 100

// GrunwaldKernel holds the pre-allocated generalized binomial weights
//
//	c_0 = 1, c_k = c_{k-1} * (k - 1 - order) / k
//
// for a fixed order and truncation length, so repeated applications reuse
// one fixed-size buffer.
type GrunwaldKernel struct {
	order   float64
	weights []float64
}

func NewGrunwaldKernel(order float64, length int) *GrunwaldKernel {
	if length < 1 {
		length = 1
	}
	w := make([]float64, length)
	w[0] = 1
	for k := 1; k < length; k++ {
		w[k] = w[k-1] * (float64(k) - 1 - order) / float64(k)
	}
	return &GrunwaldKernel{order: order, weights: w}
}

func (k *GrunwaldKernel) Order() float64 {
	return k.order
}

func (k *GrunwaldKernel) Len() int {
	return len(k.weights)
}

// Weight returns c_i, the i-th binomial weight, or 0 past the truncation.
func (k *GrunwaldKernel) Weight(i int) float64 {
	if i < 0 || i >= len(k.weights) {
		return 0
	}
	return k.weights[i]
}

// Apply convolves the kernel with the series and scales by h^-order.
func (k *GrunwaldKernel) Apply(series floats.Slice, h float64) floats.Slice {
	out := make(floats.Slice, len(series))
	scale := math.Pow(h, -k.order)
	for i := range series {
		var sum float64
		kmax := i + 1
		if kmax > len(k.weights) {
			kmax = len(k.weights)
		}
		for j := 0; j < kmax; j++ {
			sum += k.weights[j] * series[i-j]
		}
		out[i] = sum * scale
	}
	return out
}

// DerivativeConfig tunes the fractional-derivative discretization.
type DerivativeConfig struct {
	// Step is the (uniform) spacing between samples.
	Step float64
	// Truncation bounds the Grunwald-Letnikov memory kernel length.
	Truncation int
}

func (c *DerivativeConfig) defaults() DerivativeConfig {
	out := DerivativeConfig{Step: 1.0, Truncation: DefaultTruncation}
	if c != nil {
		if c.Step > 0 {
			out.Step = c.Step
		}
		if c.Truncation > 0 {
			out.Truncation = c.Truncation
		}
	}
	return out
}

// FractionalDerivative computes the fractional derivative of the sampled
// series. Order 0 is the identity for every operator.
func FractionalDerivative(series floats.Slice, order float64, op Operator, cfg *DerivativeConfig) (floats.Slice, error) {
	if order < 0 {
		return nil, errors.Errorf("negative derivative order %g, use FractionalIntegral", order)
	}
	if order == 0 {
		return series.Copy(), nil
	}
	c := cfg.defaults()

	switch op {
	case GrunwaldLetnikov:
		kernel := NewGrunwaldKernel(order, c.Truncation)
		return kernel.Apply(series, c.Step), nil
	case Caputo:
		return caputo(series, order, c.Step), nil
	case RiemannLiouville:
		return riemannLiouville(series, order, c.Step), nil
	default:
		return nil, errors.Errorf("unknown fractional operator %q", op)
	}
}

// FractionalIntegral computes the fractional integral of positive order via
// the Riemann-Liouville convolution weights.
func FractionalIntegral(series floats.Slice, order float64, cfg *DerivativeConfig) (floats.Slice, error) {
	if order <= 0 {
		return nil, errors.Errorf("fractional integral order must be positive, got %g", order)
	}
	c := cfg.defaults()
	return fractionalIntegral(series, order, c.Step), nil
}

func caputo(series floats.Slice, order, h float64) floats.Slice {
	m := int(math.Ceil(order))

	// integer derivative of order m first
	drv := series.Copy()
	for i := 0; i < m; i++ {
		drv = gradient(drv, h)
	}

	// then the fractional integral of the remaining order
	beta := float64(m) - order
	out := make(floats.Slice, len(series))
	gammaBeta1 := math.Gamma(beta + 1)
	for i := 1; i < len(series); i++ {
		var sum float64
		for j := 0; j < i; j++ {
			dt := float64(i-j) * h
			sum += math.Pow(dt, beta) / gammaBeta1 * drv[j]
		}
		out[i] = sum
	}
	return out
}

func riemannLiouville(series floats.Slice, order, h float64) floats.Slice {
	m := int(math.Ceil(order))
	beta := float64(m) - order

	// fractional integral of order beta, then m integer derivatives
	out := fractionalIntegral(series, beta, h)
	for i := 0; i < m; i++ {
		out = gradient(out, h)
	}
	return out
}

func fractionalIntegral(series floats.Slice, order, h float64) floats.Slice {
	out := make(floats.Slice, len(series))
	if order == 0 {
		copy(out, series)
		return out
	}
	gammaOrder := math.Gamma(order)
	for i := 1; i < len(series); i++ {
		var sum float64
		for j := 0; j < i; j++ {
			dt := float64(i-j) * h
			sum += math.Pow(dt, order-1) / gammaOrder * series[j] * h
		}
		out[i] = sum
	}
	return out
}

// gradient is the second-order central difference with one-sided edges.
func gradient(series floats.Slice, h float64) floats.Slice {
	n := len(series)
	out := make(floats.Slice, n)
	if n < 2 {
		return out
	}
	out[0] = (series[1] - series[0]) / h
	out[n-1] = (series[n-1] - series[n-2]) / h
	for i := 1; i < n-1; i++ {
		out[i] = (series[i+1] - series[i-1]) / (2 * h)
	}
	return out
}
