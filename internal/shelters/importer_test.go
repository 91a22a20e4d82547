package shelters

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	shelters []domain.Shelter
	calls    int
	err      error
}

func (m *memStore) ReplaceAll(_ context.Context, shelters []domain.Shelter) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.shelters = shelters
	return nil
}

type stubGeocoder struct {
	results map[string]domain.GeocodingResult
	queries []string
}

func (g *stubGeocoder) ForwardGeocode(_ context.Context, query string) (domain.GeocodingResult, error) {
	g.queries = append(g.queries, query)
	if r, ok := g.results[query]; ok {
		return r, nil
	}
	return domain.GeocodingResult{}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const header = "\ufeffName,Address,City,Zip,COUNTY,Y,X,EHPA_Capac,Pet_Friend,Notes,SHELTER_TY,General_Po\n"

func TestImport_MapsColumns(t *testing.T) {
	store := &memStore{}
	imp := NewImporter(store, nil, discardLogger())

	csvData := header +
		" Westside High , 1 School Rd,Naples,34102,Collier,26.14,-81.79,450,Yes,Bring bedding,General,Open\n" +
		"Armory,,Fort Myers,,Lee,26.64,-81.87,TBD,no,,,\n"

	report, err := imp.Import(context.Background(), strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	assert.Empty(t, report.Skipped)
	require.Len(t, store.shelters, 2)

	first := store.shelters[0]
	assert.Equal(t, "Westside High", first.Name)
	assert.Equal(t, "1 School Rd", first.Address)
	assert.Equal(t, "34102", first.ZipCode)
	assert.Equal(t, "Collier", first.County)
	assert.Equal(t, 26.14, first.Latitude)
	assert.Equal(t, -81.79, first.Longitude)
	require.NotNil(t, first.Capacity)
	assert.Equal(t, 450, *first.Capacity)
	assert.True(t, first.IsPetFriendly)
	assert.Equal(t, "Bring bedding", first.Notes)
	assert.Equal(t, "General", first.ShelterType)
	assert.Equal(t, "Open", first.Status)

	second := store.shelters[1]
	assert.Nil(t, second.Capacity, "non-numeric capacity is unknown")
	assert.False(t, second.IsPetFriendly)
}

func TestImport_SkipsInvalidRows(t *testing.T) {
	store := &memStore{}
	imp := NewImporter(store, nil, discardLogger())

	csvData := header +
		"Good,,,,,25.5,-80.2,,,,,\n" +
		",,,,,25.5,-80.2,,,,,\n" +
		"Bad Lat,,,,,95,-80.2,,,,,\n" +
		"Long Zip,,,12345-67890,,25.5,-80.2,,,,,\n" +
		"No Coords,1 Main St,Miami,,,,,,,,,\n"

	report, err := imp.Import(context.Background(), strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	require.Len(t, report.Skipped, 4)

	assert.Equal(t, 3, report.Skipped[0].Line)
	assert.Contains(t, report.Skipped[0].Error(), "[unnamed]")
	assert.Contains(t, report.Skipped[0].Error(), "Name: required")
	assert.Contains(t, report.Skipped[1].Error(), "Latitude: lte=90")
	assert.Contains(t, report.Skipped[2].Error(), "ZipCode: max=10")
	assert.Contains(t, report.Skipped[3].Error(), "geocoding is disabled")
}

func TestImport_GeocodesMissingCoordinates(t *testing.T) {
	store := &memStore{}
	geo := &stubGeocoder{results: map[string]domain.GeocodingResult{
		"1 Main St, Miami, Miami-Dade": {Lat: 25.77, Lon: -80.19, FormattedAddress: "1 Main St, Miami, Florida"},
	}}
	imp := NewImporter(store, geo, discardLogger())

	csvData := header +
		"Downtown,1 Main St,Miami,,Miami-Dade,,,,,,,\n" +
		"Unknown,9 Nowhere Ln,,,,n/a,n/a,,,,,\n"

	report, err := imp.Import(context.Background(), strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 1, report.Geocoded)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "Unknown", report.Skipped[0].Name)

	require.Len(t, store.shelters, 1)
	assert.Equal(t, 25.77, store.shelters[0].Latitude)
	assert.Equal(t, -80.19, store.shelters[0].Longitude)
	assert.Equal(t, []string{"1 Main St, Miami, Miami-Dade", "9 Nowhere Ln"}, geo.queries)
}

func TestImport_ToleratesMissingOptionalColumns(t *testing.T) {
	store := &memStore{}
	imp := NewImporter(store, nil, discardLogger())

	report, err := imp.Import(context.Background(), strings.NewReader("Name,Y,X\nHall,25,-80\nShort\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "Short", report.Skipped[0].Name)
	assert.Equal(t, "Hall", store.shelters[0].Name)
	assert.Empty(t, store.shelters[0].Notes)
}

func TestImport_HeaderErrors(t *testing.T) {
	store := &memStore{}
	imp := NewImporter(store, nil, discardLogger())

	_, err := imp.Import(context.Background(), strings.NewReader(""))
	require.Error(t, err)

	_, err = imp.Import(context.Background(), strings.NewReader("Title,Y,X\nHall,25,-80\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Name"`)
	assert.Zero(t, store.calls, "nothing is replaced without a usable header")
}

func TestImport_StoreFailure(t *testing.T) {
	store := &memStore{err: errors.New("database is locked")}
	imp := NewImporter(store, nil, discardLogger())

	report, err := imp.Import(context.Background(), strings.NewReader("Name,Y,X\nHall,25,-80\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Zero(t, report.Imported)
}

func TestImport_CancelledContext(t *testing.T) {
	store := &memStore{}
	imp := NewImporter(store, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := imp.Import(ctx, strings.NewReader("Name,Y,X\nHall,25,-80\n"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.calls)
}

func TestParseCapacity(t *testing.T) {
	tests := []struct {
		in   string
		want *int
	}{
		{"", nil},
		{"250", intPtr(250)},
		{"0", intPtr(0)},
		{"-5", nil},
		{"1,200", nil},
		{"12.5", nil},
		{"TBD", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCapacity(tt.in))
		})
	}
}

func TestParsePetFriendly(t *testing.T) {
	for _, v := range []string{"yes", "YES", "True", "y", "1"} {
		assert.True(t, parsePetFriendly(v), v)
	}
	for _, v := range []string{"", "no", "N", "0", "pets allowed"} {
		assert.False(t, parsePetFriendly(v), v)
	}
}

func intPtr(v int) *int { return &v }
