// Package pipeline runs storm ingestion: it reads the active-storm feed,
// downloads each storm's advisory archive, converts the forecast layers and
// reconciles the artifact store against the live set.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-tracker-service/internal/adapter/archive"
	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	"github.com/couchcryptid/storm-tracker-service/internal/observability"
	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
)

// FeedSource lists the currently active storms.
type FeedSource interface {
	FetchActiveStorms(ctx context.Context) ([]domain.ActiveStorm, error)
}

// ArchiveFetcher downloads an advisory archive into dir/name.
type ArchiveFetcher interface {
	Fetch(ctx context.Context, url, dir, name string) (string, error)
}

// LayerConverter reads an extracted shapefile layer.
type LayerConverter interface {
	Convert(shpPath string) (*geojson.FeatureCollection, error)
}

// ArtifactStore persists converted layers and the storm-name table.
type ArtifactStore interface {
	Save(key domain.ArtifactKey, fc *geojson.FeatureCollection) (domain.SaveResult, error)
	WriteNameTable(table domain.NameTable) error
	EvictStale(active map[string]struct{}) ([]string, error)
	ScratchDir(stormID string) (string, error)
	ClearScratch() error
}

// EventPublisher announces written artifacts. It is optional.
type EventPublisher interface {
	PublishAdvisories(ctx context.Context, events []domain.AdvisoryEvent) error
}

// RunReport summarizes one ingestion run.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Active     int
	Incomplete []string
	Written    []domain.ArtifactKey
	Superseded int
	Evicted    []string
	Failures   []*domain.StormError
	Published  int
	Errors     []error
}

// Ingestor orchestrates ingestion runs. Runs are serialized.
type Ingestor struct {
	feed      FeedSource
	fetcher   ArchiveFetcher
	converter LayerConverter
	store     ArtifactStore
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu    sync.Mutex
	ready atomic.Bool
}

// New creates an Ingestor. Pass a nil publisher to disable advisory events.
func New(feed FeedSource, fetcher ArchiveFetcher, converter LayerConverter, store ArtifactStore, publisher EventPublisher, logger *slog.Logger, metrics *observability.Metrics) *Ingestor {
	return &Ingestor{
		feed:      feed,
		fetcher:   fetcher,
		converter: converter,
		store:     store,
		publisher: publisher,
		logger:    logger.With("component", "ingestor"),
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a run has finished without aborting.
func (i *Ingestor) CheckReadiness(_ context.Context) error {
	if !i.ready.Load() {
		return errors.New("no ingestion run has completed yet")
	}
	return nil
}

// Run performs one ingestion pass. The only returned error is a feed failure,
// which aborts the run before anything is written. Per-storm failures and
// housekeeping errors are recorded in the report.
func (i *Ingestor) Run(ctx context.Context) (RunReport, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	report := RunReport{RunID: uuid.NewString(), StartedAt: domain.Now()}
	logger := i.logger.With("run_id", report.RunID)
	i.metrics.IngestRunning.Set(1)
	defer i.metrics.IngestRunning.Set(0)

	storms, err := i.feed.FetchActiveStorms(ctx)
	if err != nil {
		logger.Error("ingestion aborted, feed unavailable", "error", err)
		i.metrics.IngestRuns.WithLabelValues("aborted").Inc()
		report.FinishedAt = domain.Now()
		return report, fmt.Errorf("fetch active storms: %w", err)
	}

	if len(storms) == 0 {
		logger.Info("no active storms")
		i.metrics.IngestRuns.WithLabelValues("empty").Inc()
		i.finish(&report)
		return report, nil
	}

	names := make(domain.NameTable, len(storms))
	active := make(map[string]struct{}, len(storms))
	var events []domain.AdvisoryEvent

	for _, storm := range storms {
		if ctx.Err() != nil {
			break
		}
		id := storm.Key()
		if id == "" {
			logger.Warn("skipping feed entry without id", "name", storm.Name)
			continue
		}
		active[id] = struct{}{}

		if storm.AdvisoryNumber == "" || storm.ArchiveURL == "" {
			logger.Warn("skipping storm with incomplete feed data",
				"storm_id", id,
				"name", storm.DisplayName(),
				"has_advisory", storm.AdvisoryNumber != "",
				"has_archive", storm.ArchiveURL != "",
			)
			report.Incomplete = append(report.Incomplete, id)
			continue
		}

		names[id] = domain.NameEntry{Name: storm.DisplayName(), Type: storm.StormType}
		written := i.processStorm(ctx, logger, storm, &report)
		for _, w := range written {
			events = append(events, domain.AdvisoryEvent{
				RunID:        report.RunID,
				StormID:      id,
				StormName:    storm.DisplayName(),
				StormType:    storm.StormType,
				Kind:         w.key.Kind,
				Advisory:     w.key.Advisory,
				FileName:     w.key.FileName(),
				FeatureCount: w.features,
				IngestedAt:   domain.Now(),
			})
		}
		i.metrics.StormsProcessed.Inc()
	}
	report.Active = len(active)

	// A partial active set must not drive eviction or the name table.
	if err := ctx.Err(); err != nil {
		logger.Warn("ingestion interrupted", "error", err)
		if cerr := i.store.ClearScratch(); cerr != nil {
			logger.Warn("clear scratch failed", "error", cerr)
		}
		i.metrics.IngestRuns.WithLabelValues("aborted").Inc()
		report.FinishedAt = domain.Now()
		return report, fmt.Errorf("ingestion interrupted: %w", err)
	}

	if err := i.store.WriteNameTable(names); err != nil {
		logger.Error("write name table failed", "error", err)
		report.Errors = append(report.Errors, err)
	}

	evicted, err := i.store.EvictStale(active)
	report.Evicted = evicted
	i.metrics.ArtifactsEvicted.Add(float64(len(evicted)))
	for _, name := range evicted {
		logger.Info("evicted stale artifact", "file", name)
	}
	if err != nil {
		logger.Error("evict stale artifacts failed", "error", err)
		report.Errors = append(report.Errors, err)
	}

	if err := i.store.ClearScratch(); err != nil {
		logger.Warn("clear scratch failed", "error", err)
		report.Errors = append(report.Errors, err)
	}

	i.publish(ctx, logger, events, &report)

	i.metrics.IngestRuns.WithLabelValues("completed").Inc()
	i.finish(&report)
	logger.Info("ingestion run completed",
		"active", report.Active,
		"written", len(report.Written),
		"superseded", report.Superseded,
		"evicted", len(report.Evicted),
		"failures", len(report.Failures),
		"incomplete", len(report.Incomplete),
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

func (i *Ingestor) finish(report *RunReport) {
	report.FinishedAt = domain.Now()
	i.metrics.IngestDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	i.metrics.LastSuccessfulRun.Set(float64(report.FinishedAt.Unix()))
	i.ready.Store(true)
}

type writtenLayer struct {
	key      domain.ArtifactKey
	features int
}

// processStorm runs fetch, extract, convert and store for one storm. Failures
// are recorded on the report and never escape.
func (i *Ingestor) processStorm(ctx context.Context, logger *slog.Logger, storm domain.ActiveStorm, report *RunReport) []writtenLayer {
	id := storm.Key()
	logger = logger.With("storm_id", id, "advisory", storm.AdvisoryNumber)
	fail := func(stage domain.Stage, kind domain.Kind, err error) {
		serr := &domain.StormError{StormID: id, Stage: stage, Kind: kind, Err: err}
		logger.Warn("storm processing failed", "stage", string(stage), "kind", string(kind), "error", err)
		i.metrics.StormFailures.WithLabelValues(string(stage)).Inc()
		report.Failures = append(report.Failures, serr)
	}

	if _, err := domain.NewArtifactKey(id, domain.KindCone, storm.AdvisoryNumber); err != nil {
		fail(domain.StageValidate, "", err)
		return nil
	}

	dir, err := i.store.ScratchDir(id)
	if err != nil {
		fail(domain.StageFetch, "", err)
		return nil
	}

	logger.Info("downloading advisory archive", "name", storm.DisplayName(), "url", storm.ArchiveURL)
	zipPath, err := i.fetcher.Fetch(ctx, storm.ArchiveURL, dir, id+"_"+storm.AdvisoryNumber+".zip")
	if err != nil {
		fail(domain.StageFetch, "", err)
		return nil
	}

	arc, err := archive.Open(zipPath, logger)
	if err != nil {
		fail(domain.StageExtract, "", err)
		return nil
	}
	defer arc.Close()

	layers := arc.Layers()
	if len(layers) == 0 {
		logger.Warn("archive has no cone or track layer", "entries", len(arc.Names()))
		return nil
	}

	var written []writtenLayer
	for _, layer := range layers {
		key, _ := domain.NewArtifactKey(id, layer.Kind, storm.AdvisoryNumber)

		if _, err := arc.ExtractLayer(layer.BaseName, dir); err != nil {
			fail(domain.StageExtract, layer.Kind, err)
			continue
		}

		fc, err := i.converter.Convert(archive.LocalPath(dir, layer.BaseName, ".shp"))
		if err != nil {
			fail(domain.StageConvert, layer.Kind, err)
			continue
		}

		res, err := i.store.Save(key, fc)
		if err != nil {
			fail(domain.StageStore, layer.Kind, err)
			continue
		}

		logger.Info("artifact written", "file", key.FileName(), "features", len(fc.Features), "superseded", res.Superseded)
		i.metrics.ArtifactsWritten.WithLabelValues(string(layer.Kind)).Inc()
		i.metrics.ArtifactsSuperseded.Add(float64(res.Superseded))
		report.Written = append(report.Written, key)
		report.Superseded += res.Superseded
		written = append(written, writtenLayer{key: key, features: len(fc.Features)})
	}
	return written
}

// publish sends the run's advisory events. Failures are logged and counted.
func (i *Ingestor) publish(ctx context.Context, logger *slog.Logger, events []domain.AdvisoryEvent, report *RunReport) {
	if i.publisher == nil || len(events) == 0 {
		return
	}
	if err := i.publisher.PublishAdvisories(ctx, events); err != nil {
		logger.Warn("publish advisory events failed", "events", len(events), "error", err)
		i.metrics.EventPublishFailure.Inc()
		return
	}
	report.Published = len(events)
	i.metrics.EventsPublished.Add(float64(len(events)))
}
