package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reportql/reportql/internal/api"
	"github.com/reportql/reportql/internal/config"
	"github.com/reportql/reportql/internal/execution"
	"github.com/reportql/reportql/internal/format"
	"github.com/reportql/reportql/internal/nl2sql"
	"github.com/reportql/reportql/internal/observability"
	"github.com/reportql/reportql/internal/pipeline"
	"github.com/reportql/reportql/internal/query"
	duckdbengine "github.com/reportql/reportql/internal/query/duckdb"
	"github.com/reportql/reportql/internal/schema"
	"github.com/reportql/reportql/internal/session"
	sessionpostgres "github.com/reportql/reportql/internal/session/postgres"
	s3store "github.com/reportql/reportql/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("reportql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
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

	dataset := query.Dataset{Store: objectStore, Subject: cfg.Dataset.Subject, Prefix: cfg.Dataset.Prefix}
	runner := &query.Runner{
		Engine:   duckdbengine.NewEngine(objectStore),
		Dataset:  dataset,
		RowLimit: cfg.Pipeline.RowLimit,
	}

	store, readiness, closeStore, err := openSessionStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open session store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	sweeper := &session.Sweeper{
		Store:    store,
		MaxAge:   cfg.Session.MaxAge,
		Interval: cfg.Session.SweepInterval,
		Logger:   logger,
	}
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session sweeper stopped", slog.Any("error", err))
		}
	}()

	deps := api.Dependencies{
		Logger: logger,
		Readiness: api.CombineReadinessChecks(
			readiness,
			objectStore.HealthCheck,
			api.CheckDataset(dataset),
		),
		DependencyTimeout: time.Second,
		RequestTimeout:    cfg.HTTP.RequestTimeout,
	}

	catalog, err := loadCatalog(ctx, cfg, dataset)
	if err != nil {
		logger.Warn("schema catalog unavailable; report queries disabled", slog.Any("error", err))
	} else {
		deps.Schema = catalog
	}

	if cfg.AI.Enabled && catalog != nil {
		orchestrator, err := buildPipeline(cfg, logger, catalog, runner, store)
		if err != nil {
			logger.Error("failed to initialize query pipeline", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Pipeline = orchestrator
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("subject", cfg.Dataset.Subject),
			slog.String("session_backend", string(cfg.Session.Backend)),
			slog.Bool("pipeline_enabled", deps.Pipeline != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func openSessionStore(ctx context.Context, cfg config.Config) (session.Store, api.ReadinessCheck, func(), error) {
	if cfg.Session.Backend != config.SessionBackendPostgres {
		return session.NewMemoryStore(nil), nil, func() {}, nil
	}
	db, err := sessionpostgres.Open(ctx, sessionpostgres.DBConfigFrom(cfg.Session, cfg.Service.Name))
	if err != nil {
		return nil, nil, nil, err
	}
	store := sessionpostgres.NewStore(db, nil)
	return store, store.HealthCheck, func() { _ = db.Close() }, nil
}

func loadCatalog(ctx context.Context, cfg config.Config, dataset query.Dataset) (*schema.StaticCatalog, error) {
	files, err := dataset.Files(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parquet files under dataset %q", cfg.Dataset.Subject)
	}
	return schema.FromParquet(ctx, dataset.Store, cfg.Dataset.Subject, files[len(files)-1].ObjectPath, schema.ParquetOptions{
		NonAggregatable: cfg.Dataset.NonAggregatable,
	})
}

func buildPipeline(cfg config.Config, logger *slog.Logger, catalog schema.Catalog, runner execution.Runner, store session.Store) (*pipeline.Orchestrator, error) {
	model, err := nl2sql.NewOpenAIClient(nl2sql.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}
	translator := nl2sql.NewTranslator(model, catalog, nl2sql.TranslatorConfig{
		ConfirmationThreshold: cfg.Pipeline.ConfirmationThreshold,
		Logger:                logger,
	})
	corrector := &nl2sql.Corrector{Model: model, Catalog: catalog, Logger: logger}
	executor, err := execution.NewExecutor(runner, corrector, execution.Config{
		MaxRetries: cfg.Pipeline.MaxRetries,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create executor: %w", err)
	}
	return pipeline.New(translator, executor, store, pipeline.Config{
		DiscloseSQL: cfg.Pipeline.DiscloseSQL,
		Formatter:   format.Formatter{MaxRows: cfg.Pipeline.MaxResultRows},
		Logger:      logger,
	})
}
