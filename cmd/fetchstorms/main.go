// Command fetchstorms performs one ingestion run: it downloads the forecast
// layers of every active storm, rewrites the name table, and evicts artifacts
// of storms that left the feed. It exits 1 when the feed is unreachable.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/storm-tracker-service/internal/adapter/archive"
	"github.com/couchcryptid/storm-tracker-service/internal/adapter/filestore"
	kafkaadapter "github.com/couchcryptid/storm-tracker-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-tracker-service/internal/adapter/nhc"
	"github.com/couchcryptid/storm-tracker-service/internal/adapter/shapefile"
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
	code := run(ctx, cfg, logger, metrics, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run performs one ingestion and returns the process exit code. Deferred
// cleanup runs before main exits.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, out, errOut io.Writer) int {
	feed := nhc.NewClient(nhc.Options{
		URL:             cfg.FeedURL,
		Timeout:         cfg.FeedTimeout,
		BreakerFailures: cfg.FeedBreakerFailures,
		BreakerCooldown: cfg.FeedBreakerCooldown,
	}, metrics, logger)
	store := filestore.New(cfg.DataDir, cfg.ScratchDir, cfg.NameTablePath(), logger)

	var publisher pipeline.EventPublisher
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = writer
	}

	ingestor := pipeline.New(feed, archive.NewFetcher(cfg.ArchiveTimeout, logger),
		shapefile.NewConverter(logger), store, publisher, logger, metrics)

	report, err := ingestor.Run(ctx)
	if err != nil {
		logger.Error("ingestion aborted", "run_id", report.RunID, "error", err)
		return 1
	}

	fmt.Fprintf(out, "Run %s: %d active, %d layers written, %d superseded, %d evicted, %d failed, %d published\n",
		report.RunID, report.Active, len(report.Written), report.Superseded,
		len(report.Evicted), len(report.Failures), report.Published)
	for _, f := range report.Failures {
		fmt.Fprintf(errOut, "failed %s\n", f.Error())
	}
	for _, e := range report.Errors {
		fmt.Fprintf(errOut, "housekeeping: %v\n", e)
	}
	return 0
}
