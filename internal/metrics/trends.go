package metrics

import (
	"math"
	"sort"
	"time"

	"commitstats/internal/models"
)

// RepositoryTrend summarises how a repository's commit cadence evolves across runs.
type RepositoryTrend struct {
	ID              string   `json:"id"`
	TotalRuns       int      `json:"total_runs"`
	Successful      int      `json:"successful"`
	Failed          int      `json:"failed"`
	LastCommits     int      `json:"last_commits,omitempty"`
	LastMedian      *float64 `json:"last_median_seconds,omitempty"`
	LastP95         *float64 `json:"last_p95_seconds,omitempty"`
	MedianChangePct *float64 `json:"median_change_percent,omitempty"`
	LastError       string   `json:"last_error,omitempty"`
	LastUpdated     string   `json:"last_updated,omitempty"`
}

// ComputeTrends aggregates per-repository statistics from history entries.
func ComputeTrends(entries []models.ReportEntry) []RepositoryTrend {
	type acc struct {
		ok, failed int
		medians    []float64
		p95        float64
		commits    int
		lastError  string
		lastTime   time.Time
	}
	state := make(map[string]*acc)
	for _, entry := range entries {
		repo := state[entry.RepositoryID]
		if repo == nil {
			repo = &acc{}
			state[entry.RepositoryID] = repo
		}
		if !entry.GeneratedAt.Before(repo.lastTime) {
			repo.lastTime = entry.GeneratedAt
		}
		if !entry.OK() {
			repo.failed++
			repo.lastError = entry.Error
			continue
		}
		repo.ok++
		repo.lastError = ""
		repo.commits = entry.Report.Count
		if median, ok := entry.Report.Percentile(0.50); ok {
			repo.medians = append(repo.medians, median)
		}
		if p95, ok := entry.Report.Percentile(0.95); ok {
			repo.p95 = p95
		}
	}
	if len(state) == 0 {
		return nil
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make([]RepositoryTrend, 0, len(keys))
	for _, id := range keys {
		data := state[id]
		result := RepositoryTrend{
			ID:          id,
			TotalRuns:   data.ok + data.failed,
			Successful:  data.ok,
			Failed:      data.failed,
			LastCommits: data.commits,
			LastError:   data.lastError,
		}
		if n := len(data.medians); n > 0 {
			last := round2(data.medians[n-1])
			p95 := round2(data.p95)
			result.LastMedian = &last
			result.LastP95 = &p95
			if n > 1 && data.medians[n-2] != 0 {
				change := round2((data.medians[n-1] - data.medians[n-2]) / data.medians[n-2] * 100)
				result.MedianChangePct = &change
			}
		}
		if !data.lastTime.IsZero() {
			result.LastUpdated = data.lastTime.UTC().Format(time.RFC3339)
		}
		results = append(results, result)
	}
	return results
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
