// Command tracker serves the storm and shelter API and, when INGEST_INTERVAL
// is set, refreshes storm artifacts on a schedule.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/storm-tracker-service/internal/adapter/archive"
	"github.com/couchcryptid/storm-tracker-service/internal/adapter/filestore"
	httpadapter "github.com/couchcryptid/storm-tracker-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-tracker-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-tracker-service/internal/adapter/nhc"
	"github.com/couchcryptid/storm-tracker-service/internal/adapter/shapefile"
	"github.com/couchcryptid/storm-tracker-service/internal/adapter/sqlite"
	"github.com/couchcryptid/storm-tracker-service/internal/aggregate"
	"github.com/couchcryptid/storm-tracker-service/internal/config"
	"github.com/couchcryptid/storm-tracker-service/internal/observability"
	"github.com/couchcryptid/storm-tracker-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open shelter database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	feed := nhc.NewClient(nhc.Options{
		URL:             cfg.FeedURL,
		Timeout:         cfg.FeedTimeout,
		InsecureRetry:   cfg.FeedInsecureRetry,
		BreakerFailures: cfg.FeedBreakerFailures,
		BreakerCooldown: cfg.FeedBreakerCooldown,
	}, metrics, logger)
	store := filestore.New(cfg.DataDir, cfg.ScratchDir, cfg.NameTablePath(), logger)
	storms := aggregate.NewService(store, feed, cfg.StaticURLPrefix, logger, metrics)

	ready := observability.AllReady{db}
	var (
		writer *kafkaadapter.Writer
		wg     sync.WaitGroup
	)
	if cfg.IngestInterval > 0 {
		var publisher pipeline.EventPublisher
		if cfg.KafkaEnabled {
			writer = kafkaadapter.NewWriter(cfg, logger)
			publisher = writer
			logger.Info("advisory events enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
		}
		ingestor := pipeline.New(feed, archive.NewFetcher(cfg.ArchiveTimeout, logger),
			shapefile.NewConverter(logger), store, publisher, logger, metrics)
		ready = append(ready, sharedobs.ReadinessChecker(ingestor))

		scheduler := pipeline.NewScheduler(ingestor, cfg.IngestInterval, nil, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Start(ctx)
		}()
	} else {
		logger.Info("scheduled ingestion disabled; run fetchstorms to refresh artifacts")
	}

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:               cfg.HTTPAddr,
		StaticURLPrefix:    cfg.StaticURLPrefix,
		DataDir:            cfg.DataDir,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, sqlite.NewShelterRepository(db), storms, ready, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	// An in-flight run sees the cancelled context and stops before eviction.
	wg.Wait()
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
