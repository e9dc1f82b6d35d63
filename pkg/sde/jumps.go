package sde

import (
	"math"

	"github.com/crashradar/crashradar/pkg/datatype/floats"
	"github.com/crashradar/crashradar/pkg/types"
)

// madScale converts a median absolute deviation to a Gaussian-consistent
// standard deviation.
const madScale = 1.4826

// DefaultJumpThreshold flags a return as a jump when it sits this many
// robust standard deviations from the median.
const DefaultJumpThreshold = 4.0

// DetectJumps flags returns whose distance from the median exceeds
// threshold robust standard deviations. The MAD keeps the scale estimate
// itself insensitive to the jumps being hunted.
func DetectJumps(returns floats.Slice, threshold float64) ([]int, error) {
	if len(returns) < minJumpSample {
		return nil, &types.InsufficientDataError{Method: "jump detection", Need: minJumpSample, Got: len(returns)}
	}
	if threshold <= 0 {
		threshold = DefaultJumpThreshold
	}

	med := floats.Median(returns)
	dev := make(floats.Slice, len(returns))
	for i, r := range returns {
		dev[i] = math.Abs(r - med)
	}
	scale := madScale * floats.Median(dev)
	if scale == 0 {
		return nil, nil
	}

	var idx []int
	for i, r := range returns {
		if math.Abs(r-med) > threshold*scale {
			idx = append(idx, i)
		}
	}
	return idx, nil
}

const minJumpSample = 30

// EstimateMerton calibrates a Merton jump component from detected jumps:
// intensity from the jump count per unit time, size law from the flagged
// returns' moments. With no flagged jumps the zero value with JumpNone comes
// back.
func EstimateMerton(returns floats.Slice, dt, threshold float64) (JumpParams, error) {
	idx, err := DetectJumps(returns, threshold)
	if err != nil {
		return JumpParams{}, err
	}
	if len(idx) == 0 {
		return JumpParams{Model: JumpNone}, nil
	}

	sizes := make(floats.Slice, len(idx))
	for i, j := range idx {
		sizes[i] = returns[j]
	}

	p := JumpParams{
		Model:     JumpMerton,
		Intensity: float64(len(idx)) / (float64(len(returns)) * dt),
		Mean:      sizes.Mean(),
	}
	if len(sizes) > 1 {
		p.Std = sizes.Std()
	}
	return p, nil
}
