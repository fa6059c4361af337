package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commitstats/internal/models"
	"commitstats/internal/stats"
)

func mustReport(t *testing.T, gaps ...time.Duration) *stats.Report {
	t.Helper()
	ts := time.Date(2015, 9, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{ts}
	for _, gap := range gaps {
		ts = ts.Add(-gap)
		times = append(times, ts)
	}
	report, err := stats.Analyze(times)
	require.NoError(t, err)
	return &report
}

func TestComputeTrends(t *testing.T) {
	at := time.Date(2015, 9, 2, 0, 0, 0, 0, time.UTC)
	entries := []models.ReportEntry{
		{RepositoryID: "b", GeneratedAt: at, Report: mustReport(t, 10*time.Second, 10*time.Second)},
		{RepositoryID: "a", GeneratedAt: at, Report: mustReport(t, 10*time.Second, 30*time.Second)},
		{RepositoryID: "a", GeneratedAt: at.Add(time.Hour), Error: "fetch failed"},
		{RepositoryID: "a", GeneratedAt: at.Add(2 * time.Hour), Report: mustReport(t, 40*time.Second, 20*time.Second, 60*time.Second)},
	}

	trends := ComputeTrends(entries)
	require.Len(t, trends, 2)

	a := trends[0]
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, 3, a.TotalRuns)
	assert.Equal(t, 2, a.Successful)
	assert.Equal(t, 1, a.Failed)
	assert.Equal(t, 4, a.LastCommits)
	require.NotNil(t, a.LastMedian)
	assert.Equal(t, 40.0, *a.LastMedian)
	require.NotNil(t, a.MedianChangePct)
	assert.Equal(t, 100.0, *a.MedianChangePct)
	assert.Empty(t, a.LastError)
	assert.Equal(t, "2015-09-02T02:00:00Z", a.LastUpdated)

	b := trends[1]
	assert.Equal(t, 1, b.Successful)
	assert.Nil(t, b.MedianChangePct)
	require.NotNil(t, b.LastP95)
	assert.Equal(t, 10.0, *b.LastP95)
}

func TestComputeTrends_Empty(t *testing.T) {
	assert.Nil(t, ComputeTrends(nil))
}

func TestComputeTrends_FailureOnly(t *testing.T) {
	trends := ComputeTrends([]models.ReportEntry{{RepositoryID: "x", Error: "boom"}})
	require.Len(t, trends, 1)
	assert.Equal(t, "boom", trends[0].LastError)
	assert.Nil(t, trends[0].LastMedian)
	assert.Empty(t, trends[0].LastUpdated)
}

func TestRegistry_ObserveRun(t *testing.T) {
	reg := NewRegistry()
	report := mustReport(t, 10*time.Second, 15*time.Second, 15*time.Second)
	at := time.Unix(1441000000, 0)

	reg.ObserveFetch("chromium", nil)
	reg.ObserveFetch("chromium", errors.New("down"))
	reg.ObserveRun("chromium", report, 2*time.Second, at)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Fetches.WithLabelValues("chromium", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Fetches.WithLabelValues("chromium", "error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(reg.Commits.WithLabelValues("chromium")))
	assert.Equal(t, 15.0, testutil.ToFloat64(reg.IntervalSeconds.WithLabelValues("chromium", "50")))
	assert.Equal(t, 10.0, testutil.ToFloat64(reg.IntervalSeconds.WithLabelValues("chromium", "0")))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(reg.LastRun.WithLabelValues("chromium")))

	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)
	var histogram *dto.Histogram
	for _, family := range families {
		if family.GetName() == "commitstats_run_duration_seconds" {
			histogram = family.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, histogram)
	assert.EqualValues(t, 1, histogram.GetSampleCount())
	assert.Equal(t, 2.0, histogram.GetSampleSum())
}

func TestRegistry_ObserveRunWithoutReport(t *testing.T) {
	reg := NewRegistry()
	reg.ObserveRun("x", nil, time.Second, time.Unix(10, 0))
	assert.Equal(t, 0, testutil.CollectAndCount(reg.Commits))
	assert.Equal(t, 10.0, testutil.ToFloat64(reg.LastRun.WithLabelValues("x")))
}

func TestRegistry_Handler(t *testing.T) {
	reg := NewRegistry()
	reg.ObserveFetch("v8", nil)

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `commitstats_fetches_total{repository="v8",result="ok"} 1`)
}

func TestRankLabel(t *testing.T) {
	for rank, want := range map[float64]string{0: "0", 0.05: "5", 0.5: "50", 0.95: "95", 1: "100"} {
		assert.Equal(t, want, RankLabel(rank))
	}
}
