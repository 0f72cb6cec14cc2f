package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/api"
	"github.com/Von-Base-Enterprises/core-nexus/internal/config"
	"github.com/Von-Base-Enterprises/core-nexus/internal/dedup"
	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/Von-Base-Enterprises/core-nexus/internal/embedding"
	"github.com/Von-Base-Enterprises/core-nexus/internal/extract"
	"github.com/Von-Base-Enterprises/core-nexus/internal/graph"
	"github.com/Von-Base-Enterprises/core-nexus/internal/importexport"
	"github.com/Von-Base-Enterprises/core-nexus/internal/provider"
	"github.com/Von-Base-Enterprises/core-nexus/internal/unified"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	dsn := config.PrimaryDSN()
	if dsn == "" {
		logger.Fatal("PRIMARY_DSN is required")
	}

	ctx := context.Background()
	dimension := config.EmbeddingDimension()

	// Everything below is synchronous: when assembly finishes, every
	// component is connected, migrated, and ready to serve.
	primary, err := provider.NewPostgres(ctx, dsn, dimension,
		config.MinPoolSize(), config.MaxPoolSize(), logger)
	if err != nil {
		logger.Fatal("primary provider init failed", zap.Error(err))
	}
	defer primary.Close()

	embedder, err := embedding.New(config.EmbeddingProvider(), config.OpenAIAPIKey(), dimension)
	if err != nil {
		logger.Fatal("embedding provider init failed", zap.Error(err))
	}
	logger.Info("embedding provider initialized",
		zap.String("provider", config.EmbeddingProvider()),
		zap.Int("dimension", dimension))

	if !domain.ValidDedupMode(config.DeduplicationMode()) {
		logger.Fatal("DEDUPLICATION_MODE must be log_only or active",
			zap.String("got", config.DeduplicationMode()))
	}
	checker, err := dedup.New(ctx, primary.Pool(), primary,
		domain.DedupMode(config.DeduplicationMode()),
		config.DedupSimilarityThreshold(), logger)
	if err != nil {
		logger.Fatal("dedup init failed", zap.Error(err))
	}
	defer checker.Close()

	var secondaries []provider.VectorProvider
	if config.SecondaryEnabled() {
		badger, err := provider.NewBadger(config.SecondaryPath(), dimension, logger)
		if err != nil {
			logger.Fatal("secondary provider init failed", zap.Error(err))
		}
		secondaries = append(secondaries, badger)
	}

	var graphStore *graph.Store
	var syncer *graph.Syncer
	var extractor extract.Extractor
	if config.GraphEnabled() {
		if !graph.ValidSyncMode(config.GraphSyncMode()) {
			logger.Fatal("GRAPH_SYNC_MODE must be inline or background",
				zap.String("got", config.GraphSyncMode()))
		}
		extractor = extract.New(config.ExtractorURL(), logger)

		graphStore, err = graph.NewStore(ctx, primary.Pool(), logger)
		if err != nil {
			logger.Fatal("graph store init failed", zap.Error(err))
		}

		syncer = graph.NewSyncer(graphStore, extractor,
			graph.SyncMode(config.GraphSyncMode()), config.GraphSyncQueueSize(), logger)
		secondaries = append(secondaries, provider.NewGraph(syncer, graphStore, logger))
	}

	store := unified.NewStore(primary, secondaries, embedder, checker, extractor, logger)

	jobs, err := importexport.NewJobStore(ctx, primary.Pool())
	if err != nil {
		logger.Fatal("import job store init failed", zap.Error(err))
	}
	importer := importexport.NewImporter(store, jobs,
		config.ImportBatchSize(), config.ImportParallelism(), logger)
	exporter := importexport.NewExporter(primary, logger)

	app := api.NewApp(api.Deps{
		Store:          store,
		GraphStore:     graphStore,
		Syncer:         syncer,
		Importer:       importer,
		Exporter:       exporter,
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
	}, logger)

	app.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	app.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	for _, sec := range secondaries {
		sec.Close()
	}

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
