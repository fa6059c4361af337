package stats

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidArgument is the root of every error returned by this package.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEmptyInput reports that there is nothing to compute a statistic over.
	ErrEmptyInput = fmt.Errorf("%w: empty input", ErrInvalidArgument)
	// ErrOutOfRangePercentile reports a percentile rank outside [0, 1].
	ErrOutOfRangePercentile = fmt.Errorf("%w: percentile out of range", ErrInvalidArgument)
)

// Percentile returns the value at rank p (0.0 = minimum, 1.0 = maximum) of
// sorted, interpolating linearly between the two closest ranks.
//
// sorted must be in ascending order; this is not checked.
func Percentile(sorted []float64, p float64) (float64, error) {
	if len(sorted) == 0 {
		return 0, ErrEmptyInput
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: %v", ErrOutOfRangePercentile, p)
	}

	k := float64(len(sorted)-1) * p
	f := math.Floor(k)
	c := math.Ceil(k)
	if f == c {
		return sorted[int(k)], nil
	}
	return sorted[int(f)]*(c-k) + sorted[int(c)]*(k-f), nil
}
