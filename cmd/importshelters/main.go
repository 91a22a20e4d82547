// Command importshelters replaces the shelter directory with the rows of a
// CSV export.
//
// Usage:
//
//	go run ./cmd/importshelters -csv risk_shelters.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/storm-tracker-service/internal/adapter/mapbox"
	"github.com/couchcryptid/storm-tracker-service/internal/adapter/sqlite"
	"github.com/couchcryptid/storm-tracker-service/internal/config"
	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	"github.com/couchcryptid/storm-tracker-service/internal/observability"
	"github.com/couchcryptid/storm-tracker-service/internal/shelters"
)

const geocodeCacheSize = 1000

func main() {
	csvPath := flag.String("csv", "risk_shelters.csv", "shelter CSV export")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if code := run(ctx, cfg, *csvPath, logger, metrics); code != 0 {
		stop()
		os.Exit(code)
	}
}

func run(ctx context.Context, cfg *config.Config, csvPath string, logger *slog.Logger, metrics *observability.Metrics) int {
	f, err := os.Open(csvPath)
	if err != nil {
		logger.Error("failed to open csv", "path", csvPath, "error", err)
		return 1
	}
	defer f.Close()

	db, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open shelter database", "path", cfg.DatabasePath, "error", err)
		return 1
	}
	defer db.Close()

	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, geocodeCacheSize)
		logger.Info("mapbox geocoding enabled", "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled; rows without coordinates are skipped")
	}

	importer := shelters.NewImporter(sqlite.NewShelterRepository(db), geocoder, logger)
	report, err := importer.Import(ctx, f)
	if err != nil {
		logger.Error("shelter import failed", "error", err)
		return 1
	}

	for _, skipped := range report.Skipped {
		fmt.Fprintf(os.Stderr, "skipped %s\n", skipped.Error())
	}
	fmt.Printf("Imported %d shelters (%d geocoded, %d skipped) into %s\n",
		report.Imported, report.Geocoded, len(report.Skipped), cfg.DatabasePath)
	return 0
}
