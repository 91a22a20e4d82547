package http

import (
	"net/http"
	"strings"

	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	json "github.com/goccy/go-json"
)

func (s *Server) handleShelters(w http.ResponseWriter, r *http.Request) {
	filter := domain.ShelterFilter{County: strings.TrimSpace(r.URL.Query().Get("county"))}
	if raw := r.URL.Query().Get("pet_friendly"); raw != "" {
		v, ok := parseBool(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pet_friendly must be true or false"})
			return
		}
		filter.PetFriendly = &v
	}

	shelters, err := s.shelters.ListShelters(r.Context(), filter)
	if err != nil {
		s.logger.Error("list shelters failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "shelters unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, shelters)
}

func (s *Server) handleStorms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.storms.LegacyStormMap(r.Context()))
}

func (s *Server) handleStormsGeoJSON(w http.ResponseWriter, r *http.Request) {
	fc := s.storms.BuildFeatureCollection(r.Context())
	data, err := fc.MarshalJSON()
	if err != nil {
		s.logger.Error("encode feature collection failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"type": "FeatureCollection", "features": []any{}})
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // client gone
}

// handleFeedPassthrough always answers 200; feed failures are reported in
// the body's error field.
func (s *Server) handleFeedPassthrough(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.storms.CurrentStormTypes(r.Context()))
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	}
	return false, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client gone
}
