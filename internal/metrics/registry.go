package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"commitstats/internal/stats"
)

// Registry holds the Prometheus collectors exported by the service.
type Registry struct {
	registry *prometheus.Registry

	Fetches          *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	IntervalSeconds  *prometheus.GaugeVec
	MeanInterval     *prometheus.GaugeVec
	Commits          *prometheus.GaugeVec
	LastRun          *prometheus.GaugeVec
}

// NewRegistry creates an isolated registry with all collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		Fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commitstats_fetches_total",
				Help: "Commit log fetches by repository and result",
			},
			[]string{"repository", "result"},
		),
		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "commitstats_run_duration_seconds",
				Help:    "Wall time of a fetch and analysis run",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"repository"},
		),
		IntervalSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "commitstats_commit_interval_seconds",
				Help: "Latest commit interval percentile by repository and rank",
			},
			[]string{"repository", "rank"},
		),
		MeanInterval: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "commitstats_commit_interval_mean_seconds",
				Help: "Latest mean commit interval by repository",
			},
			[]string{"repository"},
		),
		Commits: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "commitstats_commits_analyzed",
				Help: "Number of commits in the latest analysis",
			},
			[]string{"repository"},
		),
		LastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "commitstats_last_run_timestamp_seconds",
				Help: "Unix time of the latest run by repository",
			},
			[]string{"repository"},
		),
	}
	r.registry.MustRegister(r.Fetches, r.AnalysisDuration, r.IntervalSeconds, r.MeanInterval, r.Commits, r.LastRun)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveFetch counts a fetch attempt.
func (r *Registry) ObserveFetch(repo string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.Fetches.WithLabelValues(repo, result).Inc()
}

// ObserveRun records the duration of a run and, when present, its report.
func (r *Registry) ObserveRun(repo string, report *stats.Report, took time.Duration, at time.Time) {
	r.AnalysisDuration.WithLabelValues(repo).Observe(took.Seconds())
	r.LastRun.WithLabelValues(repo).Set(float64(at.Unix()))
	if report == nil {
		return
	}
	r.Commits.WithLabelValues(repo).Set(float64(report.Count))
	r.MeanInterval.WithLabelValues(repo).Set(report.Mean)
	for _, pv := range report.Percentiles {
		r.IntervalSeconds.WithLabelValues(repo, RankLabel(pv.Rank)).Set(pv.Seconds)
	}
}

// RankLabel renders a rank as a percentage label, e.g. 0.95 -> "95".
func RankLabel(rank float64) string {
	return strconv.FormatFloat(rank*100, 'f', -1, 64)
}
