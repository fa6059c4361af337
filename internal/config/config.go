package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"commitstats/internal/models"
)

const (
	defaultBaseURL       = "https://chromium.googlesource.com"
	defaultRevisionCount = 10000
)

// Config represents configuration data for the commit statistics service.
type Config struct {
	IntervalMinutes int                 `yaml:"interval_minutes"`
	DataDirectory   string              `yaml:"data_directory"`
	ListenAddr      string              `yaml:"listen_addr"`
	HistoryLimit    int                 `yaml:"history_limit"`
	Repositories    []models.Repository `yaml:"repositories"`
	Fetch           Fetch               `yaml:"fetch"`
	Cache           Cache               `yaml:"cache"`
	Log             Log                 `yaml:"log"`
}

// Fetch tunes how commit logs are retrieved from the log host.
type Fetch struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	PageSize          int     `yaml:"page_size"`
	BreakerFailures   uint32  `yaml:"breaker_failures"`
}

// Cache configures the optional Redis cache for fetched commit times.
type Cache struct {
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// Enabled reports whether a Redis address was configured.
func (c Cache) Enabled() bool {
	return c.RedisAddr != ""
}

// Log selects verbosity and output encoding.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		IntervalMinutes: 60,
		DataDirectory:   filepath.Join(".dist", "data"),
		ListenAddr:      ":8080",
		HistoryLimit:    200,
		Repositories: []models.Repository{
			{
				ID:             "chromium-src",
				Name:           "chromium/src",
				BaseURL:        defaultBaseURL,
				Path:           "chromium/src",
				RevisionCount:  defaultRevisionCount,
				TimeoutSeconds: 120,
			},
		},
		Fetch: Fetch{
			RequestsPerSecond: 2,
			Burst:             1,
			PageSize:          1000,
			BreakerFailures:   3,
		},
		Cache: Cache{TTLSeconds: 900},
		Log:   Log{Level: "info", Format: "auto"},
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Repositories = nil
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalise() error {
	defaults := DefaultConfig()
	if c.IntervalMinutes <= 0 {
		c.IntervalMinutes = defaults.IntervalMinutes
	}
	if c.DataDirectory == "" {
		c.DataDirectory = defaults.DataDirectory
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaults.ListenAddr
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaults.HistoryLimit
	}
	if c.Fetch.RequestsPerSecond <= 0 {
		c.Fetch.RequestsPerSecond = defaults.Fetch.RequestsPerSecond
	}
	if c.Fetch.Burst <= 0 {
		c.Fetch.Burst = defaults.Fetch.Burst
	}
	if c.Fetch.PageSize <= 0 {
		c.Fetch.PageSize = defaults.Fetch.PageSize
	}
	if c.Fetch.BreakerFailures == 0 {
		c.Fetch.BreakerFailures = defaults.Fetch.BreakerFailures
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = defaults.Cache.TTLSeconds
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	if len(c.Repositories) == 0 {
		return errors.New("configuration must define at least one repository")
	}
	seen := make(map[string]struct{}, len(c.Repositories))
	for i := range c.Repositories {
		repo := &c.Repositories[i]
		if repo.Path == "" {
			return fmt.Errorf("repository %d is missing path", i)
		}
		if repo.ID == "" {
			repo.ID = repo.Path
		}
		if repo.Name == "" {
			repo.Name = repo.Path
		}
		if repo.BaseURL == "" {
			repo.BaseURL = defaultBaseURL
		}
		if repo.RevisionCount == 0 {
			repo.RevisionCount = defaultRevisionCount
		}
		if repo.RevisionCount < 2 {
			return fmt.Errorf("repository %s revision_count must be at least 2", repo.ID)
		}
		if _, dup := seen[repo.ID]; dup {
			return fmt.Errorf("repository id %s is defined twice", repo.ID)
		}
		seen[repo.ID] = struct{}{}
	}
	return nil
}

// Repository returns the configured repository with the given id.
func (c Config) Repository(id string) (models.Repository, bool) {
	for _, repo := range c.Repositories {
		if repo.ID == id {
			return repo, true
		}
	}
	return models.Repository{}, false
}
