package regime

import (
	"fmt"
	"sort"
)

// Label is the economic interpretation of a latent regime.
type Label string

const (
	Crisis Label = "crisis"
	Bear   Label = "bear"
	Bull   Label = "bull"
)

// ClassifyRegimes names each regime from its calibrated moments: regimes are
// ranked by mean return, the top regime is the bull market, the bottom one a
// crisis when its mean is negative.
func (m *Model) ClassifyRegimes() []Label {
	k := m.Regimes
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return m.Means[order[a]] < m.Means[order[b]] })

	labels := make([]Label, k)
	for rank, idx := range order {
		switch {
		case rank == k-1:
			labels[idx] = Bull
		case rank == 0 && m.Means[idx] < 0:
			labels[idx] = Crisis
		case rank == 0:
			labels[idx] = Bear
		case rank == 1 && k == 3:
			labels[idx] = Bear
		default:
			labels[idx] = Label(fmt.Sprintf("regime_%d", rank+1))
		}
	}
	return labels
}
