package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ShelterQuery joins the address parts of a shelter into a geocoding query.
func ShelterQuery(s Shelter) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{s.Address, s.City, s.County, s.ZipCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// GeocodeShelter fills in missing coordinates from the shelter's address.
// Shelters that already have coordinates are returned unchanged. A nil
// geocoder, an empty address or an empty provider result is an error so the
// caller can skip the row.
func GeocodeShelter(ctx context.Context, s Shelter, geocoder Geocoder, logger *slog.Logger) (Shelter, error) {
	if s.HasCoordinates() {
		return s, nil
	}
	if geocoder == nil {
		return s, fmt.Errorf("shelter %q has no coordinates and geocoding is disabled", s.Name)
	}

	query := ShelterQuery(s)
	if query == "" {
		return s, fmt.Errorf("shelter %q has no address to geocode", s.Name)
	}

	result, err := geocoder.ForwardGeocode(ctx, query)
	if err != nil {
		return s, fmt.Errorf("geocode shelter %q: %w", s.Name, err)
	}
	if result.Lat == 0 && result.Lon == 0 {
		return s, fmt.Errorf("geocode shelter %q: no result for %q", s.Name, query)
	}

	logger.Debug("shelter geocoded",
		"shelter", s.Name,
		"query", query,
		"formatted_address", result.FormattedAddress,
		"confidence", result.Confidence,
	)
	s.Latitude = result.Lat
	s.Longitude = result.Lon
	return s, nil
}
