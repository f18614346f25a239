package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/reportql/reportql/internal/config"
	"github.com/reportql/reportql/internal/demo/dataset"
	"github.com/reportql/reportql/internal/observability"
	s3store "github.com/reportql/reportql/internal/storage/s3"
)

func main() {
	lookup, err := config.EnvLookup()
	if err != nil {
		slog.Error("failed to read environment", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.Load("reportql-seed", lookup)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	seedCfg, err := dataset.LoadConfigFromEnv(dataset.LookupFunc(lookup))
	if err != nil {
		slog.Error("failed to load seed config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	objectStore, err := s3store.New(ctx, s3store.FromConfig(cfg.ObjectStore))
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	seeder := &dataset.Seeder{
		Store:   objectStore,
		Prefix:  cfg.Dataset.Prefix,
		Subject: cfg.Dataset.Subject,
		Logger:  logger,
	}
	rows := dataset.NewGenerator(seedCfg.Seed, seedCfg).Batch(seedCfg.Rows)

	logger.Info("seeding demo dataset",
		slog.String("subject", cfg.Dataset.Subject),
		slog.Int("rows", seedCfg.Rows),
		slog.Int("months", seedCfg.Months),
		slog.Int64("seed", seedCfg.Seed),
	)
	result, err := seeder.Seed(ctx, rows, seedCfg.Replace)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo dataset written", slog.Int("files", len(result.Files)), slog.Int("rows", result.Rows))
}
