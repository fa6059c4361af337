package gitlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"commitstats/internal/models"
)

const (
	defaultPageSize = 1000
	requestTimeout  = 30 * time.Second
	xssiPrefix      = ")]}'"
)

// Layouts accepted for committer times, with and without a zone offset.
var timeLayouts = []string{
	"Mon Jan 2 15:04:05 2006 -0700",
	"Mon Jan 2 15:04:05 2006",
}

// ErrNoCommits is returned when a log page contains no entries at all.
var ErrNoCommits = errors.New("log contains no commits")

// Source supplies commit timestamps for a repository, newest first.
type Source interface {
	CommitTimes(ctx context.Context, repo models.Repository) ([]time.Time, error)
}

// Options tunes a Client. Zero values fall back to defaults.
type Options struct {
	HTTPClient        *http.Client
	RequestsPerSecond float64
	Burst             int
	PageSize          int
	BreakerFailures   uint32
	Logger            zerolog.Logger
}

// Client reads commit logs from a Gitiles host.
type Client struct {
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	pageSize int
	logger   zerolog.Logger
}

type logPage struct {
	Log []struct {
		Commit    string `json:"commit"`
		Committer struct {
			Name  string `json:"name"`
			Email string `json:"email"`
			Time  string `json:"time"`
		} `json:"committer"`
	} `json:"log"`
	Next string `json:"next"`
}

// NewClient builds a rate-limited client guarded by a circuit breaker.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		httpClient = &http.Client{Transport: transport, Timeout: requestTimeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 3
	}

	logger := opts.Logger.With().Str("component", "gitlog").Logger()
	settings := gobreaker.Settings{
		Name:     "gitlog",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &Client{
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  gobreaker.NewCircuitBreaker(settings),
		pageSize: pageSize,
		logger:   logger,
	}
}

// CommitTimes pages through the repository log until RevisionCount committer
// times have been read or the log ends. Times are returned newest first.
func (c *Client) CommitTimes(ctx context.Context, repo models.Repository) ([]time.Time, error) {
	want := repo.RevisionCount
	if want <= 0 {
		return nil, fmt.Errorf("repository %s: revision count must be positive", repo.ID)
	}

	times := make([]time.Time, 0, want)
	cursor := ""
	for len(times) < want {
		n := min(c.pageSize, want-len(times))
		page, err := c.fetchPage(ctx, repo, n, cursor)
		if err != nil {
			return nil, err
		}
		if len(page.Log) == 0 {
			break
		}
		for _, entry := range page.Log {
			ts, err := ParseCommitTime(entry.Committer.Time)
			if err != nil {
				return nil, fmt.Errorf("commit %s: %w", entry.Commit, err)
			}
			times = append(times, ts)
			if len(times) == want {
				break
			}
		}
		if page.Next == "" {
			break
		}
		cursor = page.Next
	}

	if len(times) == 0 {
		return nil, fmt.Errorf("repository %s: %w", repo.ID, ErrNoCommits)
	}
	c.logger.Debug().Str("repository", repo.ID).Int("commits", len(times)).Msg("fetched commit log")
	return times, nil
}

func (c *Client) fetchPage(ctx context.Context, repo models.Repository, n int, cursor string) (*logPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	pageURL := LogURL(repo, n, cursor)
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.getPage(ctx, pageURL)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	return result.(*logPage), nil
}

func (c *Client) getPage(ctx context.Context, pageURL string) (*logPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return decodePage(body)
}

func decodePage(body []byte) (*logPage, error) {
	body = bytes.TrimSpace(body)
	if bytes.HasPrefix(body, []byte(xssiPrefix)) {
		body = body[len(xssiPrefix):]
	}
	var page logPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	return &page, nil
}

// LogURL builds the JSON log URL for a page of n entries starting at cursor.
func LogURL(repo models.Repository, n int, cursor string) string {
	base := strings.TrimSuffix(repo.BaseURL, "/")
	path := strings.Trim(repo.Path, "/")

	params := url.Values{}
	params.Set("n", strconv.Itoa(n))
	params.Set("format", "JSON")
	if cursor != "" {
		params.Set("s", cursor)
	}
	return fmt.Sprintf("%s/%s/+log?%s", base, path, params.Encode())
}

// ParseCommitTime parses a committer time as printed by Gitiles. Times
// without an offset are taken as UTC.
func ParseCommitTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised commit time %q", value)
}
