package nhc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	"github.com/goccy/go-json"
)

// ParseFeed decodes an active-storm feed body. Both {"activeStorms": [...]}
// and a bare array are accepted. Entries that are not objects are skipped;
// missing or oddly typed fields become empty strings.
func ParseFeed(body []byte) ([]domain.ActiveStorm, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	var entries []any
	switch v := doc.(type) {
	case map[string]any:
		entries, _ = v["activeStorms"].([]any)
	case []any:
		entries = v
	default:
		return nil, fmt.Errorf("decode feed: unexpected top-level %T", doc)
	}

	storms := make([]domain.ActiveStorm, 0, len(entries))
	for _, e := range entries {
		obj, ok := e.(map[string]any)
		if !ok {
			continue
		}
		storms = append(storms, parseStorm(obj))
	}
	return storms, nil
}

func parseStorm(obj map[string]any) domain.ActiveStorm {
	s := domain.ActiveStorm{
		ID:        scalarText(obj["id"], false),
		Name:      scalarText(obj["name"], true),
		StormType: scalarText(obj["stormType"], true),
	}
	if s.StormType == "" {
		s.StormType = domain.IntensityLabel(scalarText(obj["classification"], true))
	}
	if track, ok := obj["forecastTrack"].(map[string]any); ok {
		s.AdvisoryNumber = scalarText(track["advNum"], true)
		s.ArchiveURL = scalarText(track["zipFile"], true)
	}
	return s
}

// scalarText accepts JSON strings and numbers only; objects, arrays, bools
// and null become "". Ids are kept untrimmed so they round-trip exactly.
func scalarText(v any, trim bool) string {
	var text string
	switch t := v.(type) {
	case string:
		text = t
	case json.Number:
		text = t.String()
	default:
		return ""
	}
	if trim {
		return strings.TrimSpace(text)
	}
	return text
}
