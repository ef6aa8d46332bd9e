package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/config"
	dbRedis "github.com/storelens/storelens/internal/db/redis"
	"github.com/storelens/storelens/internal/domain/search/tier"
	logpkg "github.com/storelens/storelens/internal/logger"
	"github.com/storelens/storelens/internal/metrics"
	"github.com/storelens/storelens/internal/repository/embcache"
	indexrepo "github.com/storelens/storelens/internal/repository/index"
	chiTransport "github.com/storelens/storelens/internal/transport/chi"
	openaiEmb "github.com/storelens/storelens/internal/transport/openai"
	"github.com/storelens/storelens/internal/transport/source"
	healthuc "github.com/storelens/storelens/internal/usecase/health"
	searchuc "github.com/storelens/storelens/internal/usecase/search"
	statsuc "github.com/storelens/storelens/internal/usecase/stats"
	syncuc "github.com/storelens/storelens/internal/usecase/sync"
	"github.com/storelens/storelens/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting storelens API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("source_url", cfg.Source.BaseURL),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create index store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Index store not ready", zap.Error(err))
	}
	logger.Info("Connected to index store")

	metrics.Register()

	embedder := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:  cfg.Embedding.APIKey,
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		Logger:  logger,
	})
	logger.Info("Embedder created", zap.String("model", cfg.Embedding.Model))

	sourceClient := source.NewClient(&source.Config{
		BaseURL: cfg.Source.BaseURL,
		Timeout: time.Duration(cfg.Source.TimeoutSec) * time.Second,
		Logger:  logger,
	})

	indexRepo := indexrepo.New(store, cfg.Database.KeyPrefix)
	if err := indexRepo.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure index schema", zap.Error(err))
	}

	statsSvc, err := statsuc.New(indexRepo, cfg.Stats.TermCapacity)
	if err != nil {
		logger.Fatal("Failed to create stats service", zap.Error(err))
	}

	// Query embeddings are cached; repeated searches skip the provider.
	queryEmbedder := embcache.New(embedder, store, cfg.Database.KeyPrefix, logger)

	searchSvc := searchuc.New(indexRepo, queryEmbedder,
		searchuc.WithWeights(searchuc.Weights{
			Vector:  cfg.Search.VectorWeight,
			Lexical: cfg.Search.LexicalWeight,
		}),
		searchuc.WithTiers(tier.NewThresholds(cfg.Search.TierHigh, cfg.Search.TierMedium)),
		searchuc.WithRecorder(statsSvc),
	)

	syncSvc := syncuc.New(sourceClient, indexRepo, embedder, syncuc.Config{
		PageSize: cfg.Sync.PageSize,
		Workers:  cfg.Sync.Workers,
		Retry: syncuc.RetryPolicy{
			MaxAttempts: cfg.Sync.RetryAttempts,
			BaseDelay:   time.Duration(cfg.Sync.RetryBaseMs) * time.Millisecond,
			Multiplier:  cfg.Sync.RetryMultiplier,
		},
		HardTimeout: time.Duration(cfg.Sync.HardTimeoutSec) * time.Second,
	})

	healthSvc := healthuc.New(indexRepo, sourceClient, embedder)

	server := chiTransport.NewServer(searchSvc, syncSvc, statsSvc, healthSvc, sourceClient, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
