package types

import "fmt"

// InsufficientDataError reports an input series shorter than the minimum
// window a method requires. It is surfaced to the caller and never retried
// internally.
type InsufficientDataError struct {
	Method string
	Need   int
	Got    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need at least %d observations, got %d", e.Method, e.Need, e.Got)
}

// EmbeddingError reports a numerically invalid circulant embedding during
// spectral fBm construction. The caller may retry with a padded length.
type EmbeddingError struct {
	Length        int
	MinEigenvalue float64
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("circulant embedding of length %d has negative eigenvalue %g", e.Length, e.MinEigenvalue)
}

// NonConvergenceError reports an iterative estimator that hit its iteration
// cap. It is non-fatal: the best estimate so far is still returned alongside
// it, flagged as low confidence.
type NonConvergenceError struct {
	What       string
	Iterations int
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("%s did not converge within %d iterations", e.What, e.Iterations)
}

// InvalidParameterError reports fitted or supplied parameters violating a
// domain invariant, e.g. a variance recursion that would go negative or a
// correlation matrix that is not positive semi-definite and cannot be safely
// projected.
type InvalidParameterError struct {
	Parameter string
	Reason    string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Parameter, e.Reason)
}

// NoCrashSignalError reports that no estimation method produced a valid
// in-bound crash-time fit. This is an expected outcome for non-bubble
// regimes, not an exceptional condition.
type NoCrashSignalError struct {
	Detail error
}

func (e *NoCrashSignalError) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("no valid crash signal: %s", e.Detail)
	}
	return "no valid crash signal"
}

func (e *NoCrashSignalError) Unwrap() error {
	return e.Detail
}
