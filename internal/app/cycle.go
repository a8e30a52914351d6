package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/digest/internal/cli"
	"horse.fit/digest/internal/cluster"
	"horse.fit/digest/internal/config"
	"horse.fit/digest/internal/db"
	"horse.fit/digest/internal/feeds"
	"horse.fit/digest/internal/globaltime"
	"horse.fit/digest/internal/logging"
	"horse.fit/digest/internal/openai"
	"horse.fit/digest/internal/pipeline"
)

func runCycle(args []string) int {
	fs := flag.NewFlagSet("cycle", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 15*time.Minute, "Cycle timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "cycle does not accept positional arguments")
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

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("cycle failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	service, descriptors, cleanup, err := buildPipeline(cfg, pool, logger)
	if err != nil {
		logger.Error().Err(err).Msg("cycle setup failed")
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cleanup()

	summary, err := service.RunCycle(ctx, descriptors, globaltime.UTC())
	if err != nil {
		logger.Error().Err(err).Msg("cycle failed")
		fmt.Fprintf(os.Stderr, "Cycle failed: %v\n", err)
		return 1
	}

	if err := printJSON(summary); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to print summary: %v\n", err)
		return 1
	}
	return 0
}

// buildPipeline wires the crawler, OpenAI client, and clustering engine into
// a pipeline service. The returned cleanup stops the compute pool.
func buildPipeline(cfg *config.Config, pool *db.Pool, logger zerolog.Logger) (*pipeline.Service, []feeds.Descriptor, func(), error) {
	descriptors, err := feeds.LoadDescriptors(cfg.FeedsFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load feed descriptors: %w", err)
	}

	client, err := openai.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIToken)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build OpenAI client: %w", err)
	}

	computePool := cluster.NewComputePool(0)
	engine := cluster.NewEngine(computePool, logger)

	service := pipeline.NewService(pool, feeds.NewRSSCrawler(logger), client, client, engine, pipeline.Settings{
		EmbedKind:       cfg.EmbedKind(),
		TargetLanguage:  cfg.TargetLanguage,
		DisplayLanguage: cfg.DisplayLanguage,
		Cluster: cluster.Options{
			MinPoints:   cfg.ClusterMinPoints,
			ThresholdLo: cfg.ClusterThresholdLo,
			ThresholdHi: cfg.ClusterThresholdHi,
			Samples:     cfg.ClusterSamples,
		},
	}, logger)

	return service, descriptors, computePool.Close, nil
}
