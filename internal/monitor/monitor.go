package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"commitstats/internal/gitlog"
	"commitstats/internal/metrics"
	"commitstats/internal/models"
	"commitstats/internal/stats"
	"commitstats/internal/storage"
)

const (
	defaultRepoTimeout = 2 * time.Minute
	subscriberBuffer   = 8
)

// Monitor periodically re-analyses repositories and persists the reports.
type Monitor struct {
	interval time.Duration
	repos    []models.Repository
	source   gitlog.Source
	storage  *storage.ReportStorage
	metrics  *metrics.Registry
	logger   zerolog.Logger
	now      func() time.Time

	mu          sync.Mutex
	subscribers map[chan models.ReportEntry]struct{}

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a monitor for the given repositories and interval.
func New(
	interval time.Duration,
	repos []models.Repository,
	source gitlog.Source,
	storage *storage.ReportStorage,
	registry *metrics.Registry,
	logger zerolog.Logger,
) *Monitor {
	if interval < time.Minute {
		interval = time.Minute
	}

	return &Monitor{
		interval:    interval,
		repos:       repos,
		source:      source,
		storage:     storage,
		metrics:     registry,
		logger:      logger.With().Str("component", "monitor").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
		subscribers: make(map[chan models.ReportEntry]struct{}),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start launches the monitoring loop in a goroutine. Later calls are no-ops.
func (m *Monitor) Start() {
	if m.started.CompareAndSwap(false, true) {
		go m.run()
	}
}

// Stop requests graceful loop termination and waits until it is done.
// A monitor that was never started stops immediately.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	if m.started.Load() {
		<-m.doneCh
	}
}

// Subscribe returns a channel receiving every stored entry. Slow receivers
// miss entries rather than block the monitor. Call cancel to unsubscribe.
func (m *Monitor) Subscribe() (<-chan models.ReportEntry, func()) {
	ch := make(chan models.ReportEntry, subscriberBuffer)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, ch)
			m.mu.Unlock()
		})
	}
	return ch, cancel
}

// RunOnce analyses every repository once and returns the stored entries.
// Fetch and analysis failures are recorded in the entries; only storage
// failures and cancellation of ctx are returned. Repositories not reached
// before ctx is done are skipped.
func (m *Monitor) RunOnce(ctx context.Context) ([]models.ReportEntry, error) {
	entries := make([]models.ReportEntry, 0, len(m.repos))
	var errs []error
	for _, repo := range m.repos {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		entry, err := m.AnalyzeRepository(ctx, repo)
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			errs = append(errs, err)
			break
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, errors.Join(errs...)
}

// AnalyzeRepository fetches, analyses and stores one repository. When ctx
// itself is done nothing is stored or counted and ctx.Err() is returned.
func (m *Monitor) AnalyzeRepository(ctx context.Context, repo models.Repository) (models.ReportEntry, error) {
	if err := ctx.Err(); err != nil {
		return models.ReportEntry{}, err
	}

	timeout := time.Duration(repo.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultRepoTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := m.now()
	entry := models.ReportEntry{RepositoryID: repo.ID}

	commits, err := m.source.CommitTimes(fetchCtx, repo)
	if ctxErr := ctx.Err(); ctxErr != nil {
		m.logger.Debug().Err(ctxErr).Str("repository", repo.ID).Msg("analysis abandoned")
		return models.ReportEntry{}, ctxErr
	}
	m.metrics.ObserveFetch(repo.ID, err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			entry.Error = "fetch timed out"
		} else {
			entry.Error = err.Error()
		}
		m.logger.Error().Err(err).Str("repository", repo.ID).Msg("fetch commit log")
	} else {
		report, err := stats.Analyze(commits)
		if err != nil {
			entry.Error = err.Error()
			m.logger.Warn().Err(err).Str("repository", repo.ID).Int("commits", len(commits)).Msg("analyze commit log")
		} else {
			entry.Report = &report
			entry.Commits = commits
		}
	}

	finished := m.now()
	entry.GeneratedAt = finished
	m.metrics.ObserveRun(repo.ID, entry.Report, finished.Sub(started), finished)

	stored, err := m.storage.Append(entry)
	if err != nil {
		return stored, fmt.Errorf("store report for %s: %w", repo.ID, err)
	}

	logEvent := m.logger.Info().Str("repository", repo.ID).Str("entry", stored.ID)
	if stored.Report != nil {
		median, _ := stored.Report.Percentile(0.50)
		logEvent = logEvent.Int("commits", stored.Report.Count).Float64("median_seconds", median)
	}
	logEvent.Msg("analysis stored")

	m.publish(stored)
	return stored, nil
}

func (m *Monitor) publish(entry models.ReportEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

func (m *Monitor) run() {
	defer close(m.doneCh)

	select {
	case <-m.stopCh:
		return
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
		m.logger.Error().Err(err).Msg("initial run failed")
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error().Err(err).Msg("monitor tick failed")
			}
		case <-m.stopCh:
			return
		}
	}
}
