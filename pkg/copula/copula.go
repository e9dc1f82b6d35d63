package copula

import (
	"math"
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/types"
)

// minObservations is the shortest sample a correlation estimate is trusted
// on.
const minObservations = 30

// PseudoObservations maps each margin to uniforms by its empirical ranks,
// u_i = rank_i / (n + 1), so calibration never depends on the marginal
// distributions.
func PseudoObservations(series []floats.Slice) ([][]float64, error) {
	d := len(series)
	if d < 2 {
		return nil, &types.InvalidParameterError{Parameter: "series", Reason: "need at least two margins"}
	}
	n := len(series[0])
	for i, s := range series {
		if len(s) != n {
			return nil, &types.InvalidParameterError{Parameter: "series", Reason: "margins must share a length"}
		}
		_ = i
	}
	if n < minObservations {
		return nil, &types.InsufficientDataError{Method: "copula", Need: minObservations, Got: n}
	}

	u := make([][]float64, n)
	for t := range u {
		u[t] = make([]float64, d)
	}
	idx := make([]int, n)
	for j := 0; j < d; j++ {
		for i := range idx {
			idx[i] = i
		}
		s := series[j]
		sort.Slice(idx, func(a, b int) bool { return s[idx[a]] < s[idx[b]] })
		for rank, t := range idx {
			u[t][j] = float64(rank+1) / float64(n+1)
		}
	}
	return u, nil
}

// Gaussian is a Gaussian copula over d margins.
type Gaussian struct {
	Corr *mat.SymDense

	chol mat.Cholesky
	dim  int
}

// FitGaussian calibrates the correlation matrix from pseudo-observations via
// normal scores. A non-positive-definite estimate is projected to the
// nearest correlation matrix before factorization.
func FitGaussian(series []floats.Slice) (*Gaussian, error) {
	u, err := PseudoObservations(series)
	if err != nil {
		return nil, err
	}
	z := normalScores(u)
	corr := scoreCorrelation(z)
	return newGaussian(corr)
}

// NewGaussian builds the copula from a known correlation matrix, projecting
// to the nearest PSD matrix when it does not factorize.
func NewGaussian(corr *mat.SymDense) (*Gaussian, error) {
	return newGaussian(corr)
}

func newGaussian(corr *mat.SymDense) (*Gaussian, error) {
	g := &Gaussian{Corr: corr, dim: corr.Symmetric()}
	if !g.chol.Factorize(corr) {
		projected, err := NearestPSD(corr)
		if err != nil {
			return nil, err
		}
		log.Debug("copula correlation projected to nearest PSD")
		g.Corr = projected
		if !g.chol.Factorize(projected) {
			return nil, &types.InvalidParameterError{Parameter: "correlation", Reason: "not positive definite after projection"}
		}
	}
	return g, nil
}

// Dim returns the number of margins.
func (g *Gaussian) Dim() int { return g.dim }

// Sample draws n dependent uniform vectors.
func (g *Gaussian) Sample(n int, rng *rand.Rand) [][]float64 {
	std := distuv.Normal{Mu: 0, Sigma: 1}
	var lower mat.TriDense
	g.chol.LTo(&lower)

	out := make([][]float64, n)
	z := make([]float64, g.dim)
	for i := 0; i < n; i++ {
		for j := range z {
			z[j] = rng.NormFloat64()
		}
		row := make([]float64, g.dim)
		for r := 0; r < g.dim; r++ {
			var sum float64
			for c := 0; c <= r; c++ {
				sum += lower.At(r, c) * z[c]
			}
			row[r] = std.CDF(sum)
		}
		out[i] = row
	}
	return out
}

// StudentT is a t copula, a Gaussian copula with a shared chi-squared mixing
// variable that couples the tails.
type StudentT struct {
	Gaussian
	Nu float64
}

// FitStudentT calibrates the correlation the same way as the Gaussian and
// picks the degrees of freedom from a small grid by pseudo-likelihood.
func FitStudentT(series []floats.Slice) (*StudentT, error) {
	u, err := PseudoObservations(series)
	if err != nil {
		return nil, err
	}
	z := normalScores(u)
	corr := scoreCorrelation(z)
	g, err := newGaussian(corr)
	if err != nil {
		return nil, err
	}

	bestNu := 4.0
	bestLL := math.Inf(-1)
	for _, nu := range []float64{3, 4, 6, 8, 12, 20, 30} {
		ll := tPseudoLogLikelihood(u, g, nu)
		if ll > bestLL {
			bestLL = ll
			bestNu = nu
		}
	}
	return &StudentT{Gaussian: *g, Nu: bestNu}, nil
}

// Sample draws n dependent uniform vectors with t tail coupling.
func (t *StudentT) Sample(n int, rng *rand.Rand) [][]float64 {
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: t.Nu}
	chi2 := distuv.ChiSquared{K: t.Nu, Src: rng}
	var lower mat.TriDense
	t.chol.LTo(&lower)

	out := make([][]float64, n)
	z := make([]float64, t.dim)
	for i := 0; i < n; i++ {
		for j := range z {
			z[j] = rng.NormFloat64()
		}
		scale := math.Sqrt(t.Nu / chi2.Rand())
		row := make([]float64, t.dim)
		for r := 0; r < t.dim; r++ {
			var sum float64
			for c := 0; c <= r; c++ {
				sum += lower.At(r, c) * z[c]
			}
			row[r] = tdist.CDF(sum * scale)
		}
		out[i] = row
	}
	return out
}

// LowerTailDependence is the pairwise coefficient of joint extreme losses,
// zero for the Gaussian family, strictly positive under the t copula.
func (t *StudentT) LowerTailDependence(i, j int) float64 {
	rho := t.Corr.At(i, j)
	td := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: t.Nu + 1}
	arg := -math.Sqrt((t.Nu + 1) * (1 - rho) / (1 + rho))
	return 2 * td.CDF(arg)
}

// NearestPSD projects a symmetric matrix to the closest positive
// semi-definite correlation matrix by clipping negative eigenvalues and
// rescaling the diagonal back to ones.
func NearestPSD(m *mat.SymDense) (*mat.SymDense, error) {
	d := m.Symmetric()
	var eig mat.EigenSym
	if !eig.Factorize(m, true) {
		return nil, &types.InvalidParameterError{Parameter: "correlation", Reason: "eigendecomposition failed"}
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	for i, v := range vals {
		if v < 1e-10 {
			vals[i] = 1e-10
		}
	}

	out := mat.NewSymDense(d, nil)
	for r := 0; r < d; r++ {
		for c := r; c < d; c++ {
			var sum float64
			for k := 0; k < d; k++ {
				sum += vecs.At(r, k) * vals[k] * vecs.At(c, k)
			}
			out.SetSym(r, c, sum)
		}
	}

	// rescale to unit diagonal
	scale := make([]float64, d)
	for i := 0; i < d; i++ {
		scale[i] = math.Sqrt(out.At(i, i))
	}
	for r := 0; r < d; r++ {
		for c := r; c < d; c++ {
			out.SetSym(r, c, out.At(r, c)/(scale[r]*scale[c]))
		}
	}
	return out, nil
}

func normalScores(u [][]float64) [][]float64 {
	std := distuv.Normal{Mu: 0, Sigma: 1}
	z := make([][]float64, len(u))
	for t, row := range u {
		z[t] = make([]float64, len(row))
		for j, v := range row {
			z[t][j] = std.Quantile(v)
		}
	}
	return z
}

func scoreCorrelation(z [][]float64) *mat.SymDense {
	n := len(z)
	d := len(z[0])
	corr := mat.NewSymDense(d, nil)
	for a := 0; a < d; a++ {
		for b := a; b < d; b++ {
			var saa, sbb, sab float64
			for t := 0; t < n; t++ {
				saa += z[t][a] * z[t][a]
				sbb += z[t][b] * z[t][b]
				sab += z[t][a] * z[t][b]
			}
			corr.SetSym(a, b, sab/math.Sqrt(saa*sbb))
		}
	}
	return corr
}

// tPseudoLogLikelihood evaluates the t-copula density on the
// pseudo-observations up to terms constant in the correlation, enough to
// rank candidate degrees of freedom.
func tPseudoLogLikelihood(u [][]float64, g *Gaussian, nu float64) float64 {
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: nu}
	d := float64(g.dim)

	var inv mat.SymDense
	if err := g.cholInverse(&inv); err != nil {
		return math.Inf(-1)
	}
	logDet := g.chol.LogDet()

	lgHalf := func(x float64) float64 {
		v, _ := math.Lgamma(x)
		return v
	}
	cons := lgHalf((nu+d)/2) + (d-1)*lgHalf(nu/2) - d*lgHalf((nu+1)/2) - 0.5*logDet

	var ll float64
	x := make([]float64, g.dim)
	for _, row := range u {
		for j, v := range row {
			x[j] = tdist.Quantile(v)
		}
		var quad, margSum float64
		for a := 0; a < g.dim; a++ {
			for b := 0; b < g.dim; b++ {
				quad += x[a] * inv.At(a, b) * x[b]
			}
			margSum += math.Log1p(x[a] * x[a] / nu)
		}
		ll += cons - (nu+d)/2*math.Log1p(quad/nu) + (nu+1)/2*margSum
	}
	return ll
}

func (g *Gaussian) cholInverse(dst *mat.SymDense) error {
	return g.chol.InverseTo(dst)
}
