package stats

import (
	"fmt"
	"slices"
	"time"
)

// ReportRanks are the percentile ranks computed for every report.
var ReportRanks = []float64{0.00, 0.05, 0.25, 0.50, 0.75, 0.95, 1.00}

// PercentileValue is one computed percentile of the interval distribution.
type PercentileValue struct {
	Rank    float64 `json:"rank"`
	Seconds float64 `json:"seconds"`
}

// Report summarises the intervals between consecutive commits.
type Report struct {
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Span        time.Duration     `json:"span"`
	Count       int               `json:"count"`
	Durations   []float64         `json:"durations"`
	Percentiles []PercentileValue `json:"percentiles"`
	Min         float64           `json:"min"`
	Mean        float64           `json:"mean"`
	Max         float64           `json:"max"`
}

// Percentile returns the computed value for rank, if it is one of ReportRanks.
func (r Report) Percentile(rank float64) (float64, bool) {
	for _, pv := range r.Percentiles {
		if pv.Rank == rank {
			return pv.Seconds, true
		}
	}
	return 0, false
}

// Analyze derives commit intervals from timestamps and summarises them.
//
// Timestamps may arrive in any order. A newest-first copy is used to form
// adjacent pairs so every interval is non-negative; the input is not modified.
// At least two timestamps are required.
func Analyze(timestamps []time.Time) (Report, error) {
	if len(timestamps) < 2 {
		return Report{}, fmt.Errorf("analyze %d timestamp(s): %w", len(timestamps), ErrEmptyInput)
	}

	ordered := slices.Clone(timestamps)
	slices.SortStableFunc(ordered, func(a, b time.Time) int {
		return b.Compare(a)
	})

	durations := make([]float64, 0, len(ordered)-1)
	for later, earlier := range Pairwise(ordered) {
		durations = append(durations, later.Sub(earlier).Seconds())
	}
	slices.Sort(durations)

	percentiles := make([]PercentileValue, 0, len(ReportRanks))
	for _, rank := range ReportRanks {
		v, err := Percentile(durations, rank)
		if err != nil {
			return Report{}, fmt.Errorf("percentile %v: %w", rank, err)
		}
		percentiles = append(percentiles, PercentileValue{Rank: rank, Seconds: v})
	}

	var sum float64
	for _, d := range durations {
		sum += d
	}

	start := ordered[len(ordered)-1]
	end := ordered[0]
	return Report{
		Start:       start,
		End:         end,
		Span:        end.Sub(start),
		Count:       len(ordered),
		Durations:   durations,
		Percentiles: percentiles,
		Min:         durations[0],
		Mean:        sum / float64(len(durations)),
		Max:         durations[len(durations)-1],
	}, nil
}
