package gitlog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commitstats/internal/models"
)

const firstPage = `)]}'
{
  "log": [
    {"commit": "c3", "committer": {"name": "a", "email": "a@x", "time": "Tue Sep 01 12:00:00 2015"}},
    {"commit": "c2", "committer": {"name": "b", "email": "b@x", "time": "Tue Sep 01 11:59:50 2015"}}
  ],
  "next": "c1"
}`

const secondPage = `)]}'
{
  "log": [
    {"commit": "c1", "committer": {"name": "c", "email": "c@x", "time": "Tue Sep 01 13:59:35 2015 +0200"}},
    {"commit": "c0", "committer": {"name": "d", "email": "d@x", "time": "Tue Sep 01 11:59:20 2015"}}
  ]
}`

func newTestClient(srvURL string) (*Client, models.Repository) {
	client := NewClient(Options{PageSize: 2})
	repo := models.Repository{ID: "demo", BaseURL: srvURL + "/", Path: "/chromium/src", RevisionCount: 10}
	return client, repo
}

func TestCommitTimes_FollowsPages(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/chromium/src/+log", r.URL.Path)
		assert.Equal(t, "JSON", r.URL.Query().Get("format"))
		assert.Equal(t, "2", r.URL.Query().Get("n"))
		switch r.URL.Query().Get("s") {
		case "":
			fmt.Fprint(w, firstPage)
		case "c1":
			fmt.Fprint(w, secondPage)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("s"))
		}
	}))
	defer srv.Close()

	client, repo := newTestClient(srv.URL)
	times, err := client.CommitTimes(context.Background(), repo)
	require.NoError(t, err)

	base := time.Date(2015, 9, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{
		base,
		base.Add(-10 * time.Second),
		base.Add(-25 * time.Second),
		base.Add(-40 * time.Second),
	}, times)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestCommitTimes_StopsAtRevisionCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, firstPage)
	}))
	defer srv.Close()

	client, repo := newTestClient(srv.URL)
	repo.RevisionCount = 1
	times, err := client.CommitTimes(context.Background(), repo)
	require.NoError(t, err)
	assert.Len(t, times, 1)
}

func TestCommitTimes_EmptyLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ")]}'\n{\"log\": []}")
	}))
	defer srv.Close()

	client, repo := newTestClient(srv.URL)
	_, err := client.CommitTimes(context.Background(), repo)
	assert.ErrorIs(t, err, ErrNoCommits)
}

func TestCommitTimes_BadTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"log": [{"commit": "x", "committer": {"time": "yesterday"}}]}`)
	}))
	defer srv.Close()

	client, repo := newTestClient(srv.URL)
	_, err := client.CommitTimes(context.Background(), repo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yesterday")
}

func TestCommitTimes_BreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(Options{BreakerFailures: 2})
	repo := models.Repository{ID: "demo", BaseURL: srv.URL, Path: "p", RevisionCount: 5}

	for i := 0; i < 2; i++ {
		_, err := client.CommitTimes(context.Background(), repo)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http 502")
	}
	_, err := client.CommitTimes(context.Background(), repo)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestCommitTimes_InvalidCount(t *testing.T) {
	client := NewClient(Options{})
	_, err := client.CommitTimes(context.Background(), models.Repository{ID: "x"})
	assert.Error(t, err)
}

func TestLogURL(t *testing.T) {
	repo := models.Repository{BaseURL: "https://chromium.googlesource.com/", Path: "chromium/src"}
	assert.Equal(t, "https://chromium.googlesource.com/chromium/src/+log?format=JSON&n=100", LogURL(repo, 100, ""))
	assert.Equal(t, "https://chromium.googlesource.com/chromium/src/+log?format=JSON&n=5&s=abc", LogURL(repo, 5, "abc"))
}

func TestParseCommitTime(t *testing.T) {
	ts, err := ParseCommitTime("Wed Sep 2 08:01:02 2015")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2015, 9, 2, 8, 1, 2, 0, time.UTC), ts)

	ts, err = ParseCommitTime("Wed Sep 02 08:01:02 2015 -0700")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2015, 9, 2, 15, 1, 2, 0, time.UTC), ts)

	_, err = ParseCommitTime("2015-09-02")
	assert.Error(t, err)
}
