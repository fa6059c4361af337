package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"commitstats/internal/metrics"
	"commitstats/internal/monitor"
	"commitstats/internal/server"
	"commitstats/internal/storage"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Periodically analyse configured repositories and serve the reports",
	Long: `Re-analyse every configured repository on a fixed interval, persist the
reports and expose them over HTTP:

  GET  /api/repositories
  GET  /api/reports[/{id}[/history|/cadence]]
  GET  /api/trends
  POST /api/analyze
  GET  /ws
  GET  /metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address for the web server (overrides listen_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}
	logger.Info().Int("repositories", len(cfg.Repositories)).Str("config", configPath).Msg("configuration loaded")

	historyPath := filepath.Join(cfg.DataDirectory, "reports.json")
	store, err := storage.NewReportStorage(historyPath, cfg.HistoryLimit)
	if err != nil {
		return err
	}

	source, release := newSource(cfg, logger)
	defer func() {
		if err := release(); err != nil {
			logger.Warn().Err(err).Msg("close cache")
		}
	}()

	registry := metrics.NewRegistry()
	mon := monitor.New(time.Duration(cfg.IntervalMinutes)*time.Minute, cfg.Repositories, source, store, registry, logger)
	mon.Start()
	defer mon.Stop()

	srv := server.New(cfg.ListenAddr, cfg.Repositories, store, mon, registry, cfg.HistoryLimit, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", cfg.ListenAddr).Int("interval_minutes", cfg.IntervalMinutes).Msg("commitstats listening")
	if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
