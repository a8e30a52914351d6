package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"horse.fit/digest/internal/cli"
	"horse.fit/digest/internal/config"
	"horse.fit/digest/internal/db"
	"horse.fit/digest/internal/globaltime"
	"horse.fit/digest/internal/logging"
)

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	interval := fs.Duration("interval", 0, "Cycle interval (defaults to CYCLE_INTERVAL)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon does not accept positional arguments")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	cycleInterval := cfg.CycleInterval
	if *interval > 0 {
		cycleInterval = *interval
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.NewPool(dbCtx, cfg)
	dbCancel()
	if err != nil {
		logger.Error().Err(err).Msg("daemon failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	service, descriptors, cleanup, err := buildPipeline(cfg, pool, logger)
	if err != nil {
		logger.Error().Err(err).Msg("daemon setup failed")
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	logger.Info().Dur("interval", cycleInterval).Int("feeds", len(descriptors)).Msg("daemon started")

	ticker := time.NewTicker(cycleInterval)
	defer ticker.Stop()

	for {
		summary, err := service.RunCycle(ctx, descriptors, globaltime.UTC())
		switch {
		case errors.Is(err, context.Canceled):
			logger.Info().Msg("daemon stopped")
			return 0
		case err != nil:
			// Writes are idempotent, so the next cycle picks up where this
			// one stopped.
			logger.Error().Err(err).Msg("cycle failed; waiting for next interval")
		default:
			logger.Info().
				Int("new_entries", summary.Ingest.NewEntries).
				Int("translated", summary.Translate.Translated).
				Int("embedded", summary.Embed.Embedded).
				Int("groups", summary.Report.Groups).
				Msg("cycle complete")
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("daemon stopped")
			return 0
		case <-ticker.C:
		}
	}
}
