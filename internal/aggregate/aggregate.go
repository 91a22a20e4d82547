// Package aggregate builds the read-side views of the artifact store: the
// merged, enriched storm FeatureCollection, the legacy per-storm map and the
// live feed passthrough. Every call recomputes from disk and the feed.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/storm-tracker-service/internal/adapter/filestore"
	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	"github.com/couchcryptid/storm-tracker-service/internal/observability"
	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"
)

// FeedSource is the live active-storm feed.
type FeedSource interface {
	FetchActiveStorms(ctx context.Context) ([]domain.ActiveStorm, error)
	FetchActiveStormsRelaxed(ctx context.Context) ([]domain.ActiveStorm, error)
}

// ArtifactSource reads the artifact store.
type ArtifactSource interface {
	List() ([]filestore.Artifact, error)
	GeoJSONFiles() ([]string, error)
	ReadNameTable() (domain.NameTable, error)
}

// Service serves aggregated storm data.
type Service struct {
	artifacts    ArtifactSource
	feed         FeedSource
	staticPrefix string
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewService creates a Service. staticPrefix is the URL path under which the
// artifact directory is served.
func NewService(artifacts ArtifactSource, feed FeedSource, staticPrefix string, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		artifacts:    artifacts,
		feed:         feed,
		staticPrefix: staticPrefix,
		logger:       logger.With("component", "aggregate"),
		metrics:      metrics,
	}
}

// UnnamedStorm is the placeholder display name for a storm without one.
func UnnamedStorm(stormID string) string {
	return fmt.Sprintf("Unnamed Storm (%s)", strings.ToUpper(stormID))
}

type stormInfo struct {
	name string
	typ  string
}

// lookup merges the name table with the live feed. Feed entries fill in
// storms the table lacks and types the table left blank. feedTypes holds the
// raw feed type per id.
func (s *Service) lookup(ctx context.Context) (info map[string]stormInfo, feedTypes map[string]string) {
	info = make(map[string]stormInfo)
	feedTypes = make(map[string]string)

	table, err := s.artifacts.ReadNameTable()
	if err != nil {
		s.logger.Warn("name table unreadable, continuing without it", "error", err)
	}
	for id, entry := range table {
		info[id] = stormInfo{name: strings.TrimSpace(entry.Name), typ: strings.TrimSpace(entry.Type)}
	}

	storms, err := s.feed.FetchActiveStorms(ctx)
	if err != nil {
		s.logger.Debug("live feed unavailable, using local data only", "error", err)
		return info, feedTypes
	}
	for _, storm := range storms {
		id := storm.Key()
		if id == "" {
			continue
		}
		typ := strings.TrimSpace(storm.StormType)
		feedTypes[id] = typ
		known, ok := info[id]
		switch {
		case !ok:
			info[id] = stormInfo{name: strings.TrimSpace(storm.Name), typ: typ}
		case typ != "" && known.typ == "":
			known.typ = typ
			info[id] = known
		}
	}
	return info, feedTypes
}

// BuildFeatureCollection merges every GeoJSON file under the artifact
// directory into one collection and enriches each feature with stormName,
// status, title and stormId. Unparseable files are skipped. Features keep
// file order, then in-file order.
func (s *Service) BuildFeatureCollection(ctx context.Context) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()

	files, err := s.artifacts.GeoJSONFiles()
	if err != nil {
		s.logger.Warn("list artifact files failed", "error", err)
		return out
	}
	if len(files) == 0 {
		return out
	}

	info, feedTypes := s.lookup(ctx)

	for _, path := range files {
		features, err := ReadFeatures(path)
		if err != nil {
			s.logger.Warn("skipping artifact file", "file", filepath.Base(path), "error", err)
			s.metrics.AggregateFilesSkipped.Inc()
			continue
		}

		id := domain.StormIDFromFileName(filepath.Base(path))
		known := info[id]
		friendly := known.name
		if friendly == "" {
			friendly = UnnamedStorm(id)
		}
		stormType := known.typ
		if stormType == "" {
			stormType = feedTypes[id]
		}

		for _, f := range features {
			enrich(f, id, friendly, stormType)
			out.Append(f)
		}
	}

	s.metrics.FeaturesServed.Add(float64(len(out.Features)))
	s.logger.Debug("feature collection built", "files", len(files), "features", len(out.Features))
	return out
}

// enrich sets the display properties of f in place.
func enrich(f *geojson.Feature, stormID, friendlyName, stormType string) {
	if f.Properties == nil {
		f.Properties = geojson.Properties{}
	}
	props := f.Properties

	if !domain.Truthy(props["stormName"]) {
		name := friendlyName
		for _, k := range []string{"name", "storm"} {
			if domain.Truthy(props[k]) {
				name = domain.TextValue(props[k])
				break
			}
		}
		props["stormName"] = name
	}
	stormName := domain.TextValue(props["stormName"])

	status := stormType
	if status == "" {
		status = domain.ClassifyProperties(props)
	}
	if status != "" {
		props["status"] = status
		props["title"] = status + " " + stormName
	} else {
		props["title"] = stormName
	}
	props["stormId"] = stormID
}

// ReadFeatures decodes a FeatureCollection or a single Feature. Other
// GeoJSON types contribute nothing.
func ReadFeatures(path string) ([]*geojson.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrArtifactFileInvalid, err)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrArtifactFileInvalid, err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrArtifactFileInvalid, err)
		}
		return fc.Features, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrArtifactFileInvalid, err)
		}
		return []*geojson.Feature{f}, nil
	default:
		return nil, nil
	}
}
