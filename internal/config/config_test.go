package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FillsDefaults(t *testing.T) {
	path := writeConfig(t, `
interval_minutes: 0
repositories:
  - path: v8/v8
    revision_count: 500
  - id: skia
    path: skia
    base_url: https://skia.googlesource.com
cache:
  redis_addr: localhost:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.IntervalMinutes)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 1000, cfg.Fetch.PageSize)
	assert.Equal(t, 900, cfg.Cache.TTLSeconds)
	assert.True(t, cfg.Cache.Enabled())
	require.Len(t, cfg.Repositories, 2)

	v8 := cfg.Repositories[0]
	assert.Equal(t, "v8/v8", v8.ID)
	assert.Equal(t, "v8/v8", v8.Name)
	assert.Equal(t, defaultBaseURL, v8.BaseURL)
	assert.Equal(t, 500, v8.RevisionCount)

	skia, ok := cfg.Repository("skia")
	require.True(t, ok)
	assert.Equal(t, "https://skia.googlesource.com", skia.BaseURL)
	assert.Equal(t, defaultRevisionCount, skia.RevisionCount)

	_, ok = cfg.Repository("missing")
	assert.False(t, ok)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"no repositories": "interval_minutes: 5\n",
		"missing path":    "repositories:\n  - id: x\n",
		"tiny count":      "repositories:\n  - path: x\n    revision_count: 1\n",
		"duplicate id":    "repositories:\n  - path: x\n  - path: y\n    id: x\n",
		"bad yaml":        "repositories: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
