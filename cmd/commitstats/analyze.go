package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"commitstats/internal/config"
	"commitstats/internal/gitlog"
	"commitstats/internal/models"
	"commitstats/internal/stats"
)

type analyzeOptions struct {
	repoPath string
	baseURL  string
	count    int
	format   string
	noCache  bool
}

var analyzeOpts analyzeOptions

var analyzeCmd = &cobra.Command{
	Use:   "analyze [repository-id...]",
	Short: "Fetch a commit log and print interval statistics",
	Long: `Fetch the commit log of one or more repositories and print the
distribution of intervals between consecutive commits.

Examples:
  commitstats analyze                          # every configured repository
  commitstats analyze chromium-src             # one configured repository
  commitstats analyze --repo v8/v8 -n 2000     # ad hoc repository
  commitstats analyze --format json`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	addAnalyzeFlags(analyzeCmd.Flags(), &analyzeOpts)
}

func addAnalyzeFlags(fs *pflag.FlagSet, opts *analyzeOptions) {
	fs.StringVar(&opts.repoPath, "repo", "", "repository path on the log host, e.g. chromium/src")
	fs.StringVar(&opts.baseURL, "base-url", "https://chromium.googlesource.com", "log host used with --repo")
	fs.IntVarP(&opts.count, "count", "n", 10000, "number of revisions to read with --repo")
	fs.StringVar(&opts.format, "format", "text", "output format: text, json")
	fs.BoolVar(&opts.noCache, "no-cache", false, "ignore cached commit times and refresh the cache")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if analyzeOpts.format != "text" && analyzeOpts.format != "json" {
		return fmt.Errorf("unknown format %q", analyzeOpts.format)
	}
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	repos, err := selectRepositories(cfg, analyzeOpts, args)
	if err != nil {
		return err
	}

	src, release := newSource(cfg, logger)
	defer func() {
		if err := release(); err != nil {
			logger.Warn().Err(err).Msg("close cache")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	reports := make(map[string]stats.Report, len(repos))
	for i, repo := range repos {
		times, err := fetchCommitTimes(ctx, src, repo, analyzeOpts.noCache)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", repo.ID, err)
		}
		report, err := stats.Analyze(times)
		if err != nil {
			return fmt.Errorf("analyze %s: %w", repo.ID, err)
		}
		if analyzeOpts.format == "json" {
			reports[repo.ID] = report
			continue
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		if len(repos) > 1 {
			fmt.Fprintf(out, "== %s\n", repo.Name)
		}
		if err := renderText(out, report); err != nil {
			return err
		}
	}

	if analyzeOpts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	return nil
}

// refresher is implemented by sources that can bypass and repopulate a cache.
type refresher interface {
	Refresh(ctx context.Context, repo models.Repository) ([]time.Time, error)
}

func fetchCommitTimes(ctx context.Context, src gitlog.Source, repo models.Repository, refresh bool) ([]time.Time, error) {
	if r, ok := src.(refresher); ok && refresh {
		return r.Refresh(ctx, repo)
	}
	return src.CommitTimes(ctx, repo)
}

func selectRepositories(cfg config.Config, opts analyzeOptions, ids []string) ([]models.Repository, error) {
	if opts.repoPath != "" {
		if len(ids) > 0 {
			return nil, errors.New("--repo cannot be combined with repository ids")
		}
		if opts.count < 2 {
			return nil, errors.New("--count must be at least 2")
		}
		return []models.Repository{{
			ID:            opts.repoPath,
			Name:          opts.repoPath,
			BaseURL:       opts.baseURL,
			Path:          opts.repoPath,
			RevisionCount: opts.count,
		}}, nil
	}
	if len(ids) == 0 {
		return cfg.Repositories, nil
	}
	repos := make([]models.Repository, 0, len(ids))
	for _, id := range ids {
		repo, ok := cfg.Repository(id)
		if !ok {
			return nil, fmt.Errorf("repository %q is not configured", id)
		}
		repos = append(repos, repo)
	}
	return repos, nil
}
