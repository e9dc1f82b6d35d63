package fractal

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/types"
)

// FBMMethod selects the fractional Brownian motion construction.
type FBMMethod string

const (
	// FBMCholesky factorizes the exact autocovariance matrix. O(n^2)
	// storage and O(n^3) construction, but always applicable.
	FBMCholesky FBMMethod = "cholesky"
	// FBMDaviesHarte embeds the autocovariance in a circulant matrix and
	// factorizes it spectrally in O(n log n).
	FBMDaviesHarte FBMMethod = "davies_harte"
)

// embeddingTolerance is the relative magnitude below which a negative
// circulant eigenvalue is treated as rounding noise and clamped.
const embeddingTolerance = 1e-8

// FGNAutocovariance is the autocovariance of unit-step fractional Gaussian
// noise at the given lag.
func FGNAutocovariance(h float64, lag int) float64 {
	k := math.Abs(float64(lag))
	return 0.5 * (math.Pow(k+1, 2*h) - 2*math.Pow(k, 2*h) + math.Pow(math.Abs(k-1), 2*h))
}

// FGN draws n increments of fractional Gaussian noise with Hurst exponent h
// and unit step. The draw is fully determined by rng.
func FGN(h float64, n int, method FBMMethod, rng *rand.Rand) (floats.Slice, error) {
	if h <= 0 || h >= 1 {
		return nil, &types.InvalidParameterError{Parameter: "H", Reason: "must be in (0, 1)"}
	}
	if n < 1 {
		return nil, errors.Errorf("fgn: invalid length %d", n)
	}

	switch method {
	case FBMCholesky:
		return fgnCholesky(h, n, rng)
	case FBMDaviesHarte:
		return fgnDaviesHarte(h, n, rng)
	default:
		return nil, errors.Errorf("unknown fbm method %q", method)
	}
}

// SimulateFBM draws a fractional Brownian motion path of n steps starting at
// zero; the returned slice has n+1 points.
func SimulateFBM(h float64, n int, method FBMMethod, rng *rand.Rand) (floats.Slice, error) {
	incr, err := FGN(h, n, method, rng)
	if err != nil {
		return nil, err
	}
	path := make(floats.Slice, n+1)
	for i, v := range incr {
		path[i+1] = path[i] + v
	}
	return path, nil
}

func fgnCholesky(h float64, n int, rng *rand.Rand) (floats.Slice, error) {
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, FGNAutocovariance(h, j-i))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, &types.InvalidParameterError{Parameter: "H", Reason: "fGn covariance matrix is not positive definite"}
	}
	l := mat.NewTriDense(n, mat.Lower, nil)
	chol.LTo(l)

	z := make(floats.Slice, n)
	for i := range z {
		z[i] = rng.NormFloat64()
	}
	out := make(floats.Slice, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j <= i; j++ {
			sum += l.At(i, j) * z[j]
		}
		out[i] = sum
	}
	return out, nil
}

func fgnDaviesHarte(h float64, n int, rng *rand.Rand) (floats.Slice, error) {
	m := 2 * n

	// first row of the circulant embedding
	row := make([]complex128, m)
	for k := 0; k <= n; k++ {
		row[k] = complex(FGNAutocovariance(h, k), 0)
	}
	for k := 1; k < n; k++ {
		row[m-k] = row[k]
	}

	fft := fourier.NewCmplxFFT(m)
	eig := fft.Coefficients(nil, row)

	// the circulant eigenvalues are the DFT of the first row; they must all
	// be non-negative for the embedding to define a covariance
	maxEig := 0.0
	minEig := math.Inf(1)
	lambda := make([]float64, m)
	for i, c := range eig {
		lambda[i] = real(c)
		if lambda[i] > maxEig {
			maxEig = lambda[i]
		}
		if lambda[i] < minEig {
			minEig = lambda[i]
		}
	}
	if minEig < -embeddingTolerance*maxEig {
		return nil, &types.EmbeddingError{Length: n, MinEigenvalue: minEig}
	}
	for i := range lambda {
		if lambda[i] < 0 {
			lambda[i] = 0
		}
	}

	// assemble the Hermitian-symmetric spectral noise
	w := make([]complex128, m)
	w[0] = complex(math.Sqrt(lambda[0]/float64(m))*rng.NormFloat64(), 0)
	w[n] = complex(math.Sqrt(lambda[n]/float64(m))*rng.NormFloat64(), 0)
	for j := 1; j < n; j++ {
		scale := math.Sqrt(lambda[j] / float64(2*m))
		a, b := rng.NormFloat64(), rng.NormFloat64()
		w[j] = complex(scale*a, scale*b)
		w[m-j] = complex(scale*a, -scale*b)
	}

	spectrum := fft.Coefficients(nil, w)
	out := make(floats.Slice, n)
	for i := 0; i < n; i++ {
		out[i] = real(spectrum[i])
	}
	return out, nil
}
