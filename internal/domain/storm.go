package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ArtifactExt is the file extension of stored forecast artifacts.
const ArtifactExt = ".geojson"

// ActiveStorm is one entry of the live active-storm feed.
type ActiveStorm struct {
	ID             string
	Name           string
	AdvisoryNumber string
	ArchiveURL     string
	StormType      string
}

// Key returns the lowercase id used for name-table and artifact lookups.
func (s ActiveStorm) Key() string {
	return strings.ToLower(strings.TrimSpace(s.ID))
}

// DisplayName returns the storm name, falling back to the raw id.
func (s ActiveStorm) DisplayName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return s.ID
}

// Kind identifies which forecast layer an artifact holds.
type Kind string

const (
	KindCone  Kind = "cone"
	KindTrack Kind = "track"
)

// Kinds lists the layer kinds in extraction order.
var Kinds = []Kind{KindCone, KindTrack}

// LayerSuffix returns the shapefile name suffix that identifies the kind
// inside an advisory archive.
func (k Kind) LayerSuffix() string {
	switch k {
	case KindCone:
		return "_5day_pgn.shp"
	case KindTrack:
		return "_5day_lin.shp"
	default:
		return ""
	}
}

// ParseKind validates a kind token from an artifact filename.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindCone, KindTrack:
		return Kind(s), true
	default:
		return "", false
	}
}

// ArtifactKey identifies one stored artifact: (storm, kind, advisory).
type ArtifactKey struct {
	StormID  string
	Kind     Kind
	Advisory string
}

// NewArtifactKey builds a key with a normalized storm id, rejecting tokens
// that could not survive the filename round trip.
func NewArtifactKey(stormID string, kind Kind, advisory string) (ArtifactKey, error) {
	key := ArtifactKey{
		StormID:  strings.ToLower(strings.TrimSpace(stormID)),
		Kind:     kind,
		Advisory: strings.TrimSpace(advisory),
	}
	if err := ValidateToken(key.StormID); err != nil {
		return ArtifactKey{}, fmt.Errorf("storm id: %w", err)
	}
	if err := ValidateToken(key.Advisory); err != nil {
		return ArtifactKey{}, fmt.Errorf("advisory: %w", err)
	}
	if kind.LayerSuffix() == "" {
		return ArtifactKey{}, fmt.Errorf("kind %q: %w", kind, ErrInvalidToken)
	}
	return key, nil
}

// FileName encodes the key as "{stormId}_{kind}_{advisory}.geojson".
func (k ArtifactKey) FileName() string {
	return k.StormID + "_" + string(k.Kind) + "_" + k.Advisory + ArtifactExt
}

// ParseArtifactName decodes an artifact filename. Names that are not
// ".geojson" files or do not split into exactly three underscore tokens with
// a known kind are rejected.
func ParseArtifactName(name string) (ArtifactKey, bool) {
	stem, ok := strings.CutSuffix(name, ArtifactExt)
	if !ok {
		return ArtifactKey{}, false
	}
	parts := strings.Split(stem, "_")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return ArtifactKey{}, false
	}
	kind, ok := ParseKind(parts[1])
	if !ok {
		return ArtifactKey{}, false
	}
	return ArtifactKey{StormID: strings.ToLower(parts[0]), Kind: kind, Advisory: parts[2]}, true
}

// SaveResult describes a successful artifact write.
type SaveResult struct {
	Path       string
	Superseded int
}

// ArtifactStormID reports the lowercased storm id of any ".geojson" name with
// exactly three underscore tokens, whatever its kind token. Eviction works on
// this shape.
func ArtifactStormID(name string) (string, bool) {
	stem, ok := strings.CutSuffix(name, ArtifactExt)
	if !ok || strings.Count(stem, "_") != 2 {
		return "", false
	}
	return StormIDFromFileName(name), true
}

// StormIDFromFileName returns the lowercased first underscore token of a
// file stem. It applies to any ".geojson" name, not just valid artifacts.
func StormIDFromFileName(name string) string {
	stem := strings.TrimSuffix(name, ArtifactExt)
	id, _, _ := strings.Cut(stem, "_")
	return strings.ToLower(id)
}

// ValidateToken rejects values that would break the three-token filename
// convention or escape the artifact directory.
func ValidateToken(s string) error {
	switch {
	case s == "", s == ".", s == "..":
		return ErrInvalidToken
	case strings.ContainsAny(s, "_/\\"):
		return ErrInvalidToken
	}
	return nil
}

// NameEntry is one value of the storm-name table.
type NameEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// UnmarshalJSON accepts either a {name, type} object or a bare display name.
func (e *NameEntry) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if obj, ok := v.(map[string]any); ok {
		*e = NameEntry{Name: TextValue(obj["name"]), Type: TextValue(obj["type"])}
		return nil
	}
	*e = NameEntry{Name: TextValue(v)}
	return nil
}

// NameTable maps lowercase storm ids to display metadata.
type NameTable map[string]NameEntry

// AdvisoryEvent announces an artifact written by an ingestion run.
type AdvisoryEvent struct {
	RunID        string    `json:"run_id"`
	StormID      string    `json:"storm_id"`
	StormName    string    `json:"storm_name"`
	StormType    string    `json:"storm_type,omitempty"`
	Kind         Kind      `json:"kind"`
	Advisory     string    `json:"advisory"`
	FileName     string    `json:"file_name"`
	FeatureCount int       `json:"feature_count"`
	IngestedAt   time.Time `json:"ingested_at"`
}
