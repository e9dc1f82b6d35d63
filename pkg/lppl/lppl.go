package lppl

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/types"
)

// Bounds on the nonlinear parameters. Fits whose power exponent or
// log-frequency land outside these are rejected as spurious.
const (
	MinExponent  = 0.1
	MaxExponent  = 0.9
	MinFrequency = 3.0
	MaxFrequency = 15.0
)

// Method names an estimation strategy for the critical time.
type Method string

const (
	MethodNelderMead Method = "nelder_mead"
	MethodTPE        Method = "tpe"
	MethodGrid       Method = "grid"
	MethodSubsample  Method = "subsample"
)

// Fit is one calibrated log-periodic power law
//
//	ln p(t) = A + B*(tc-t)^m + C*(tc-t)^m * cos(omega*ln(tc-t) + phi)
//
// with time measured in sample indices. Tc is the critical time, past the
// end of the observed series.
type Fit struct {
	A     float64
	B     float64
	C     float64
	M     float64
	Omega float64
	Phi   float64
	Tc    float64

	// Residual is the root mean squared error on log prices.
	Residual float64
	// R2 is the coefficient of determination on log prices.
	R2 float64
	// Confidence in [0, 1], degraded for boundary-pinned parameters and
	// capped optimizer runs.
	Confidence float64

	Method Method
	Valid  bool
}

// Evaluate returns the model log price at time t. Past the critical time the
// oscillatory term is undefined and the value saturates at A.
func (f Fit) Evaluate(t float64) float64 {
	dt := f.Tc - t
	if dt <= 0 {
		return f.A
	}
	pw := math.Pow(dt, f.M)
	return f.A + f.B*pw + f.C*pw*math.Cos(f.Omega*math.Log(dt)+f.Phi)
}

// EvaluatePrice is Evaluate transformed back to price space.
func (f Fit) EvaluatePrice(t float64) float64 {
	return math.Exp(f.Evaluate(t))
}

// calibrate solves the linear subproblem for a fixed (tc, m, omega): the
// model is linear in A, B, and the split cosine pair
//
//	C1*cos(omega*ln(tc-t)) + C2*sin(omega*ln(tc-t))
//
// so those four follow from least squares and only three parameters are
// left to the nonlinear search.
func calibrate(logPrices floats.Slice, tc, m, omega float64) (Fit, error) {
	n := len(logPrices)
	if tc <= float64(n-1) {
		return Fit{}, &types.InvalidParameterError{Parameter: "tc", Reason: "critical time inside the observed window"}
	}

	design := mat.NewDense(n, 4, nil)
	rhs := mat.NewVecDense(n, nil)
	for t := 0; t < n; t++ {
		dt := tc - float64(t)
		pw := math.Pow(dt, m)
		phase := omega * math.Log(dt)
		design.Set(t, 0, 1)
		design.Set(t, 1, pw)
		design.Set(t, 2, pw*math.Cos(phase))
		design.Set(t, 3, pw*math.Sin(phase))
		rhs.SetVec(t, logPrices[t])
	}

	var coef mat.Dense
	if err := coef.Solve(design, rhs); err != nil {
		return Fit{}, &types.InvalidParameterError{Parameter: "design", Reason: "singular linear subproblem"}
	}

	a := coef.At(0, 0)
	b := coef.At(1, 0)
	c1 := coef.At(2, 0)
	c2 := coef.At(3, 0)

	fit := Fit{
		A:     a,
		B:     b,
		C:     math.Hypot(c1, c2),
		M:     m,
		Omega: omega,
		Phi:   math.Atan2(-c2, c1),
		Tc:    tc,
	}

	var sse, sst float64
	mean := logPrices.Mean()
	for t := 0; t < n; t++ {
		r := logPrices[t] - fit.Evaluate(float64(t))
		sse += r * r
		d := logPrices[t] - mean
		sst += d * d
	}
	fit.Residual = math.Sqrt(sse / float64(n))
	if sst > 0 {
		fit.R2 = 1 - sse/sst
	}
	return fit, nil
}

// rmse is the nonlinear objective. Out-of-bound or degenerate points get a
// large finite penalty so simplex methods can walk back in.
func rmse(logPrices floats.Slice, tc, m, omega float64) float64 {
	fit, err := calibrate(logPrices, tc, m, omega)
	if err != nil || math.IsNaN(fit.Residual) {
		return 1e6
	}
	return fit.Residual
}
