package copula

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/types"
)

// DefaultDCCLambda is the RiskMetrics smoothing weight.
const DefaultDCCLambda = 0.94

// DCC tracks a time-varying correlation matrix with an exponentially
// weighted covariance recursion
//
//	Q_t = (1-lambda) z_t z_t' + lambda Q_{t-1}
//
// on standardized residuals, renormalized to a correlation at each step.
type DCC struct {
	Lambda float64

	q   *mat.SymDense
	dim int
}

// NewDCC seeds the recursion with the unconditional correlation of the
// standardized series.
func NewDCC(lambda float64, dim int) (*DCC, error) {
	if lambda <= 0 || lambda >= 1 {
		return nil, &types.InvalidParameterError{Parameter: "lambda", Reason: "must be in (0, 1)"}
	}
	if dim < 2 {
		return nil, &types.InvalidParameterError{Parameter: "dim", Reason: "need at least two margins"}
	}
	q := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		q.SetSym(i, i, 1)
	}
	return &DCC{Lambda: lambda, q: q, dim: dim}, nil
}

// Update folds one standardized observation into the recursion and returns
// the current correlation matrix. Off-diagonal entries are clamped into
// [-1, 1] before being handed to any factorization.
func (d *DCC) Update(z []float64) (*mat.SymDense, error) {
	if len(z) != d.dim {
		return nil, &types.InvalidParameterError{Parameter: "z", Reason: "dimension mismatch"}
	}
	for r := 0; r < d.dim; r++ {
		for c := r; c < d.dim; c++ {
			d.q.SetSym(r, c, (1-d.Lambda)*z[r]*z[c]+d.Lambda*d.q.At(r, c))
		}
	}
	return d.Correlation(), nil
}

// Correlation returns the current state normalized to unit diagonal.
func (d *DCC) Correlation() *mat.SymDense {
	out := mat.NewSymDense(d.dim, nil)
	for r := 0; r < d.dim; r++ {
		for c := r; c < d.dim; c++ {
			v := d.q.At(r, c) / math.Sqrt(d.q.At(r, r)*d.q.At(c, c))
			if v > 1 {
				v = 1
			}
			if v < -1 {
				v = -1
			}
			out.SetSym(r, c, v)
		}
	}
	return out
}

// Run standardizes each margin by its own mean and standard deviation and
// replays the whole sample, returning the correlation path. The path has one
// matrix per observation.
func (d *DCC) Run(series []floats.Slice) ([]*mat.SymDense, error) {
	if len(series) != d.dim {
		return nil, &types.InvalidParameterError{Parameter: "series", Reason: "dimension mismatch"}
	}
	n := len(series[0])
	for _, s := range series {
		if len(s) != n {
			return nil, &types.InvalidParameterError{Parameter: "series", Reason: "margins must share a length"}
		}
	}
	if n < minObservations {
		return nil, &types.InsufficientDataError{Method: "dcc", Need: minObservations, Got: n}
	}

	std := make([]floats.Slice, d.dim)
	for j, s := range series {
		std[j] = floats.Zscore(s)
	}

	// seed Q with the unconditional correlation
	corr := scoreCorr2(std)
	d.q.CopySym(corr)

	path := make([]*mat.SymDense, n)
	z := make([]float64, d.dim)
	for t := 0; t < n; t++ {
		for j := 0; j < d.dim; j++ {
			z[j] = std[j][t]
		}
		c, err := d.Update(z)
		if err != nil {
			return nil, err
		}
		path[t] = c
	}
	return path, nil
}

func scoreCorr2(std []floats.Slice) *mat.SymDense {
	d := len(std)
	n := len(std[0])
	out := mat.NewSymDense(d, nil)
	for a := 0; a < d; a++ {
		for b := a; b < d; b++ {
			var sum float64
			for t := 0; t < n; t++ {
				sum += std[a][t] * std[b][t]
			}
			v := sum / float64(n)
			if v > 1 {
				v = 1
			}
			if v < -1 {
				v = -1
			}
			out.SetSym(a, b, v)
		}
	}
	return out
}
