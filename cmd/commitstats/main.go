package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"commitstats/internal/cache"
	"commitstats/internal/config"
	"commitstats/internal/gitlog"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "commitstats",
	Short: "Commit interval statistics for version-controlled projects",
	Long: `commitstats reads the commit log of a repository and reports how the
intervals between consecutive commits are distributed: span, count,
percentiles and min/mean/max.

Use 'commitstats analyze' for a one-shot report and 'commitstats serve'
to re-analyse configured repositories periodically behind an HTTP API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format override (auto, console, json)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and installs the process logger.
func setup() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, zerolog.Logger{}, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	logger, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return config.Config{}, zerolog.Logger{}, err
	}
	log.Logger = logger
	return cfg, logger, nil
}

func newLogger(out *os.File, cfg config.Log) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log level: %w", err)
	}

	var w io.Writer = out
	switch cfg.Format {
	case "console":
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	case "json":
	case "auto", "":
		if term.IsTerminal(int(out.Fd())) {
			w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
		}
	default:
		return zerolog.Logger{}, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// newSource builds the commit log source, wrapped in the Redis cache when
// one is configured. The returned function releases cache connections.
func newSource(cfg config.Config, logger zerolog.Logger) (gitlog.Source, func() error) {
	client := gitlog.NewClient(gitlog.Options{
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		Burst:             cfg.Fetch.Burst,
		PageSize:          cfg.Fetch.PageSize,
		BreakerFailures:   cfg.Fetch.BreakerFailures,
		Logger:            logger,
	})
	if !cfg.Cache.Enabled() {
		return client, func() error { return nil }
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr, DB: cfg.Cache.RedisDB})
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	logger.Info().Str("addr", cfg.Cache.RedisAddr).Dur("ttl", ttl).Msg("commit time cache enabled")
	return cache.New(client, rdb, ttl, logger), rdb.Close
}
