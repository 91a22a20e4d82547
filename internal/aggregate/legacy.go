package aggregate

import (
	"context"
	"strings"

	"github.com/couchcryptid/storm-tracker-service/internal/domain"
)

// LegacyStorm is one entry of the per-storm map served to older clients.
type LegacyStorm struct {
	Advisory string `json:"advisory"`
	Cone     string `json:"cone,omitempty"`
	Track    string `json:"track,omitempty"`
	Name     string `json:"name"`
}

// LegacyStormMap maps storm ids to their newest cone and track URLs. Only
// recognized artifacts directly in the data directory are included. Names
// come from the name table, then the live feed, then a placeholder.
func (s *Service) LegacyStormMap(ctx context.Context) map[string]LegacyStorm {
	out := make(map[string]LegacyStorm)

	artifacts, err := s.artifacts.List()
	if err != nil {
		s.logger.Warn("list artifacts failed", "error", err)
		return out
	}
	if len(artifacts) == 0 {
		return out
	}

	names := s.legacyNames(ctx)

	newest := make(map[string]map[domain.Kind]string) // storm -> kind -> advisory
	for _, a := range artifacts {
		id := a.Key.StormID
		if newest[id] == nil {
			newest[id] = make(map[domain.Kind]string)
		}
		if cur, ok := newest[id][a.Key.Kind]; ok && domain.CompareAdvisory(cur, a.Key.Advisory) >= 0 {
			continue
		}
		newest[id][a.Key.Kind] = a.Key.Advisory

		entry := out[id]
		url := s.staticPrefix + a.FileName()
		switch a.Key.Kind {
		case domain.KindCone:
			entry.Cone = url
		case domain.KindTrack:
			entry.Track = url
		}
		if entry.Advisory == "" || domain.CompareAdvisory(a.Key.Advisory, entry.Advisory) > 0 {
			entry.Advisory = a.Key.Advisory
		}
		entry.Name = names[id]
		if entry.Name == "" {
			entry.Name = UnnamedStorm(id)
		}
		out[id] = entry
	}
	return out
}

// legacyNames reads display names from the name table and fills blanks from
// the live feed when it is reachable.
func (s *Service) legacyNames(ctx context.Context) map[string]string {
	names := make(map[string]string)
	table, err := s.artifacts.ReadNameTable()
	if err != nil {
		s.logger.Warn("name table unreadable, continuing without it", "error", err)
	}
	for id, entry := range table {
		names[id] = strings.TrimSpace(entry.Name)
	}

	storms, err := s.feed.FetchActiveStorms(ctx)
	if err != nil {
		s.logger.Debug("live feed unavailable, using local names only", "error", err)
		return names
	}
	for _, storm := range storms {
		id := storm.Key()
		if id != "" && names[id] == "" {
			names[id] = strings.TrimSpace(storm.Name)
		}
	}
	return names
}

// Passthrough is the live feed reduced to storm types keyed by lowercase id
// and by lowercase name.
type Passthrough struct {
	ByID   map[string]string `json:"byId"`
	ByName map[string]string `json:"byName"`
	Error  string            `json:"error,omitempty"`
}

// UpstreamFailed marks a passthrough built without feed data.
const UpstreamFailed = "upstream_failed"

// CurrentStormTypes fetches the live feed and indexes each storm's type. A
// feed failure yields empty maps and Error set to UpstreamFailed.
func (s *Service) CurrentStormTypes(ctx context.Context) Passthrough {
	out := Passthrough{ByID: map[string]string{}, ByName: map[string]string{}}

	storms, err := s.feed.FetchActiveStormsRelaxed(ctx)
	if err != nil {
		s.logger.Warn("feed passthrough failed", "error", err)
		out.Error = UpstreamFailed
		return out
	}
	for _, storm := range storms {
		typ := strings.TrimSpace(storm.StormType)
		if typ == "" {
			continue
		}
		if id := storm.Key(); id != "" {
			out.ByID[id] = typ
		}
		if name := strings.ToLower(strings.TrimSpace(storm.Name)); name != "" {
			out.ByName[name] = typ
		}
	}
	return out
}
