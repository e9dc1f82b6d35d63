package regime

import (
	"math"
	"sort"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/types"
)

// probFloor keeps the filter recursions away from exact zeros so that
// renormalization never divides by zero.
const probFloor = 1e-300

const varianceFloor = 1e-10

// Config drives the Markov-switching EM calibration.
type Config struct {
	Regimes       int     `yaml:"regimes"`
	MaxIterations int     `yaml:"maxIterations"`
	Tolerance     float64 `yaml:"tolerance"`
}

func DefaultConfig() Config {
	return Config{Regimes: 2, MaxIterations: 200, Tolerance: 1e-6}
}

// Model is a k-regime Markov-switching model with Gaussian emissions,
//
//	y_t | S_t=j ~ N(mean_j, variance_j)
//	P(S_t=j | S_{t-1}=i) = Transition[i][j]
//
// Calibrated once per window by Fit and treated as read-only afterwards.
type Model struct {
	Regimes       int
	Means         floats.Slice
	Variances     floats.Slice
	Transition    [][]float64
	Initial       floats.Slice
	LogLikelihood float64
	Iterations    int
	Converged     bool
}

// FilterResult carries the Hamilton filter output: filtered (causal) and
// smoothed (full-sample) regime probabilities. Every row sums to one.
type FilterResult struct {
	Filtered      [][]float64
	Smoothed      [][]float64
	States        []int
	LogLikelihood float64
}

// Fit calibrates the model on a return series by EM. Hitting the iteration
// cap is non-fatal: the best model so far is returned together with a
// NonConvergenceError.
func Fit(returns floats.Slice, cfg Config) (*Model, *FilterResult, error) {
	k := cfg.Regimes
	n := len(returns)
	if k < 2 {
		return nil, nil, &types.InvalidParameterError{Parameter: "regimes", Reason: "need at least 2 regimes"}
	}
	minObs := 20 * k
	if n < minObs {
		return nil, nil, &types.InsufficientDataError{Method: "regime/fit", Need: minObs, Got: n}
	}

	model := initialModel(returns, k)

	prevLL := math.Inf(-1)
	var result *FilterResult
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		var err error
		result, err = model.Filter(returns)
		if err != nil {
			return nil, nil, err
		}

		model.maximize(returns, result)
		model.Iterations = iter + 1
		model.LogLikelihood = result.LogLikelihood

		if math.Abs(result.LogLikelihood-prevLL) < cfg.Tolerance {
			model.Converged = true
			break
		}
		prevLL = result.LogLikelihood
	}

	// final pass under the converged parameters
	final, err := model.Filter(returns)
	if err != nil {
		return nil, nil, err
	}
	model.LogLikelihood = final.LogLikelihood

	if !model.Converged {
		log.WithField("iterations", model.Iterations).
			Debug("regime EM hit the iteration cap, returning best estimate")
		return model, final, &types.NonConvergenceError{What: "regime EM", Iterations: model.Iterations}
	}
	return model, final, nil
}

// initialModel seeds the EM: per-regime means from k-means clustering of the
// returns (falling back to percentiles on degenerate data), a persistent
// transition matrix, and its stationary distribution as the initial state
// distribution.
func initialModel(returns floats.Slice, k int) *Model {
	means, variances := kmeansSeed(returns, k)

	transition := make([][]float64, k)
	for i := range transition {
		transition[i] = make([]float64, k)
		for j := range transition[i] {
			if i == j {
				transition[i][j] = 0.9
			} else {
				transition[i][j] = 0.1 / float64(k-1)
			}
		}
	}

	m := &Model{
		Regimes:    k,
		Means:      means,
		Variances:  variances,
		Transition: transition,
	}
	m.Initial = m.StationaryDistribution()
	return m
}

func kmeansSeed(returns floats.Slice, k int) (floats.Slice, floats.Slice) {
	var obs clusters.Observations
	for _, v := range returns {
		obs = append(obs, clusters.Coordinates{v})
	}

	km := kmeans.New()
	partition, err := km.Partition(obs, k)
	if err != nil || len(partition) != k {
		return percentileSeed(returns, k)
	}

	type seed struct{ mean, variance float64 }
	seeds := make([]seed, 0, k)
	for _, c := range partition {
		var members floats.Slice
		for _, o := range c.Observations {
			members.Push(o.Coordinates()[0])
		}
		v := members.Var()
		if v < varianceFloor {
			v = returns.Var()
		}
		seeds = append(seeds, seed{mean: c.Center[0], variance: v})
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i].mean < seeds[j].mean })

	means := make(floats.Slice, k)
	variances := make(floats.Slice, k)
	for i, s := range seeds {
		means[i] = s.mean
		variances[i] = s.variance
	}
	return means, variances
}

func percentileSeed(returns floats.Slice, k int) (floats.Slice, floats.Slice) {
	means := make(floats.Slice, k)
	variances := make(floats.Slice, k)
	v := returns.Var()
	for i := 0; i < k; i++ {
		p := 10 + 80*float64(i)/float64(k-1)
		means[i] = floats.Percentile(returns, p)
		variances[i] = v
	}
	return means, variances
}

// Filter runs the Hamilton forward filter followed by the backward smoother
// under the current parameters. Probabilities are renormalized at every step
// to guard against underflow; the log-likelihood is accumulated from the
// normalization constants.
func (m *Model) Filter(returns floats.Slice) (*FilterResult, error) {
	n := len(returns)
	k := m.Regimes
	if n == 0 {
		return nil, errors.New("regime filter: empty return series")
	}

	densities := m.emissionDensities(returns)

	filtered := make([][]float64, n)
	ll := 0.0

	// forward recursion
	prev := make([]float64, k)
	copy(prev, m.Initial)
	for t := 0; t < n; t++ {
		row := make([]float64, k)
		var c float64
		for j := 0; j < k; j++ {
			var pred float64
			if t == 0 {
				pred = prev[j]
			} else {
				for i := 0; i < k; i++ {
					pred += prev[i] * m.Transition[i][j]
				}
			}
			row[j] = pred*densities[t][j] + probFloor
			c += row[j]
		}
		for j := 0; j < k; j++ {
			row[j] /= c
		}
		ll += math.Log(c)
		filtered[t] = row
		prev = row
	}

	// backward recursion
	beta := make([][]float64, n)
	beta[n-1] = make([]float64, k)
	for j := 0; j < k; j++ {
		beta[n-1][j] = 1
	}
	for t := n - 2; t >= 0; t-- {
		row := make([]float64, k)
		var c float64
		for i := 0; i < k; i++ {
			var sum float64
			for j := 0; j < k; j++ {
				sum += m.Transition[i][j] * densities[t+1][j] * beta[t+1][j]
			}
			row[i] = sum + probFloor
			c += row[i]
		}
		for i := 0; i < k; i++ {
			row[i] /= c
		}
		beta[t] = row
	}

	smoothed := make([][]float64, n)
	states := make([]int, n)
	for t := 0; t < n; t++ {
		row := make([]float64, k)
		var c float64
		for j := 0; j < k; j++ {
			row[j] = filtered[t][j]*beta[t][j] + probFloor
			c += row[j]
		}
		best := 0
		for j := 0; j < k; j++ {
			row[j] /= c
			if row[j] > row[best] {
				best = j
			}
		}
		smoothed[t] = row
		states[t] = best
	}

	return &FilterResult{
		Filtered:      filtered,
		Smoothed:      smoothed,
		States:        states,
		LogLikelihood: ll,
	}, nil
}

// maximize is the EM M-step: probability-weighted moments for the regime
// means and variances, expected transition counts for the matrix.
func (m *Model) maximize(returns floats.Slice, r *FilterResult) {
	n := len(returns)
	k := m.Regimes
	densities := m.emissionDensities(returns)

	for j := 0; j < k; j++ {
		var wsum, mean float64
		for t := 0; t < n; t++ {
			wsum += r.Smoothed[t][j]
			mean += r.Smoothed[t][j] * returns[t]
		}
		mean /= wsum
		var variance float64
		for t := 0; t < n; t++ {
			d := returns[t] - mean
			variance += r.Smoothed[t][j] * d * d
		}
		variance /= wsum
		if variance < varianceFloor {
			variance = varianceFloor
		}
		m.Means[j] = mean
		m.Variances[j] = variance
	}

	// expected transition counts
	counts := make([][]float64, k)
	for i := range counts {
		counts[i] = make([]float64, k)
	}
	for t := 0; t < n-1; t++ {
		var total float64
		xi := make([][]float64, k)
		for i := 0; i < k; i++ {
			xi[i] = make([]float64, k)
			for j := 0; j < k; j++ {
				// beta is folded into the smoothed probability of t+1
				v := r.Filtered[t][i] * m.Transition[i][j] * densities[t+1][j] * r.Smoothed[t+1][j] / (r.Filtered[t+1][j] + probFloor)
				xi[i][j] = v
				total += v
			}
		}
		if total <= 0 {
			continue
		}
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				counts[i][j] += xi[i][j] / total
			}
		}
	}
	for i := 0; i < k; i++ {
		var rowSum float64
		for j := 0; j < k; j++ {
			rowSum += counts[i][j]
		}
		if rowSum <= 0 {
			continue
		}
		for j := 0; j < k; j++ {
			m.Transition[i][j] = counts[i][j] / rowSum
		}
	}

	copy(m.Initial, r.Smoothed[0])
}

func (m *Model) emissionDensities(returns floats.Slice) [][]float64 {
	n := len(returns)
	out := make([][]float64, n)
	dists := make([]distuv.Normal, m.Regimes)
	for j := range dists {
		dists[j] = distuv.Normal{Mu: m.Means[j], Sigma: math.Sqrt(m.Variances[j])}
	}
	for t := 0; t < n; t++ {
		row := make([]float64, m.Regimes)
		for j := range dists {
			row[j] = dists[j].Prob(returns[t])
		}
		out[t] = row
	}
	return out
}

// StationaryDistribution returns the long-run regime distribution of the
// transition matrix, computed by power iteration.
func (m *Model) StationaryDistribution() floats.Slice {
	k := m.Regimes
	pi := make(floats.Slice, k)
	for i := range pi {
		pi[i] = 1 / float64(k)
	}
	next := make(floats.Slice, k)
	for iter := 0; iter < 200; iter++ {
		for j := 0; j < k; j++ {
			var sum float64
			for i := 0; i < k; i++ {
				sum += pi[i] * m.Transition[i][j]
			}
			next[j] = sum
		}
		var delta float64
		for j := 0; j < k; j++ {
			delta += math.Abs(next[j] - pi[j])
		}
		copy(pi, next)
		if delta < 1e-12 {
			break
		}
	}
	return pi
}

// ExpectedDurations returns the mean sojourn time of each regime,
// 1/(1 - p_ii).
func (m *Model) ExpectedDurations() floats.Slice {
	out := make(floats.Slice, m.Regimes)
	for i := 0; i < m.Regimes; i++ {
		out[i] = 1 / (1 - m.Transition[i][i] + 1e-10)
	}
	return out
}

// ForecastRegime projects a regime probability vector h steps ahead through
// the transition matrix.
func (m *Model) ForecastRegime(current floats.Slice, horizon int) floats.Slice {
	k := m.Regimes
	pi := current.Copy()
	next := make(floats.Slice, k)
	for h := 0; h < horizon; h++ {
		for j := 0; j < k; j++ {
			var sum float64
			for i := 0; i < k; i++ {
				sum += pi[i] * m.Transition[i][j]
			}
			next[j] = sum
		}
		copy(pi, next)
	}
	return pi
}
