package history

import (
	"slices"
	"time"

	"commitstats/internal/models"
)

// DefaultCadencePoints controls how many buckets we generate per repository.
const DefaultCadencePoints = 48

// BuildCadence buckets commit times into points equal windows over [start, end].
// Zero start or end values default to the earliest and latest commit.
func BuildCadence(repo models.Repository, commits []time.Time, start, end time.Time, points int) models.RepositoryCadence {
	if points <= 0 {
		points = DefaultCadencePoints
	}
	sorted := slices.Clone(commits)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })

	if len(sorted) > 0 {
		if start.IsZero() {
			start = sorted[0]
		}
		if end.IsZero() {
			end = sorted[len(sorted)-1]
		}
	}
	if !end.After(start) {
		end = start.Add(time.Minute)
	}

	name := repo.Name
	if name == "" {
		name = repo.ID
	}
	return models.RepositoryCadence{
		RepositoryID:   repo.ID,
		RepositoryName: name,
		Cadence:        buildCadence(sorted, start, end, points),
	}
}

func buildCadence(sorted []time.Time, start, end time.Time, points int) []models.CadencePoint {
	output := make([]models.CadencePoint, 0, points)

	bucketDuration := end.Sub(start) / time.Duration(points)
	if bucketDuration <= 0 {
		bucketDuration = time.Second
	}

	counts := make([]int, points)
	total := 0
	cursor := 0
	for i := 0; i < points; i++ {
		bucketStart := start.Add(time.Duration(i) * bucketDuration)
		bucketEnd := bucketStart.Add(bucketDuration)
		last := i == points-1
		if last {
			bucketEnd = end
		}
		counts[i], cursor = countBucket(sorted, bucketStart, bucketEnd, cursor, last)
		total += counts[i]
		output = append(output, models.CadencePoint{
			Start:   bucketStart,
			End:     bucketEnd,
			Commits: counts[i],
		})
	}

	mean := float64(total) / float64(points)
	for i := range output {
		output[i].ClassName, output[i].Label = classify(counts[i], mean)
	}
	return output
}

// countBucket counts commits in [start, end), or [start, end] when inclusive.
func countBucket(sorted []time.Time, start, end time.Time, cursor int, inclusive bool) (int, int) {
	total := len(sorted)
	i := cursor
	for i < total && sorted[i].Before(start) {
		i++
	}
	j := i
	for j < total && (sorted[j].Before(end) || (inclusive && sorted[j].Equal(end))) {
		j++
	}
	return j - i, j
}

func classify(count int, mean float64) (className, label string) {
	c := float64(count)
	switch {
	case count == 0:
		return "cadence-idle", "Idle"
	case c < mean*0.5:
		return "cadence-quiet", "Quiet"
	case c > mean*1.5:
		return "cadence-busy", "Busy"
	default:
		return "cadence-steady", "Steady"
	}
}
