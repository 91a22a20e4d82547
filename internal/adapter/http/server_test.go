package http_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	httpadapter "github.com/couchcryptid/storm-tracker-service/internal/adapter/http"
	"github.com/couchcryptid/storm-tracker-service/internal/aggregate"
	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	json "github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockShelters struct {
	shelters []domain.Shelter
	err      error
	filters  []domain.ShelterFilter
}

func (m *mockShelters) ListShelters(_ context.Context, filter domain.ShelterFilter) ([]domain.Shelter, error) {
	m.filters = append(m.filters, filter)
	return m.shelters, m.err
}

type mockStorms struct {
	legacy      map[string]aggregate.LegacyStorm
	fc          *geojson.FeatureCollection
	passthrough aggregate.Passthrough
}

func (m *mockStorms) LegacyStormMap(_ context.Context) map[string]aggregate.LegacyStorm {
	return m.legacy
}

func (m *mockStorms) BuildFeatureCollection(_ context.Context) *geojson.FeatureCollection {
	return m.fc
}

func (m *mockStorms) CurrentStormTypes(_ context.Context) aggregate.Passthrough {
	return m.passthrough
}

type fixture struct {
	dataDir  string
	shelters *mockShelters
	storms   *mockStorms
	srv      *httpadapter.Server
}

func newFixture(t *testing.T, readyErr error, rateLimit int) *fixture {
	t.Helper()
	f := &fixture{
		dataDir:  t.TempDir(),
		shelters: &mockShelters{},
		storms:   &mockStorms{fc: geojson.NewFeatureCollection()},
	}
	opts := httpadapter.Options{
		Addr:               ":0",
		StaticURLPrefix:    "/static/tracker/data/",
		DataDir:            f.dataDir,
		CORSAllowedOrigins: []string{"https://tracker.example.org"},
		RateLimitPerMinute: rateLimit,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.srv = httpadapter.NewServer(opts, f.shelters, f.storms, &mockReadiness{err: readyErr}, logger)
	return f
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := newFixture(t, nil, 0).get("/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := newFixture(t, nil, 0).get("/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := newFixture(t, fmt.Errorf("no ingestion run has finished"), 0).get("/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no ingestion run has finished", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture(t, nil, 0).get("/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestShelters(t *testing.T) {
	f := newFixture(t, nil, 0)
	capacity := 450
	f.shelters.shelters = []domain.Shelter{{
		ID: 7, Name: "Westside High", County: "Collier", ZipCode: "34102",
		Latitude: 26.14, Longitude: -81.79, Capacity: &capacity, IsPetFriendly: true,
	}}

	rec := f.get("/api/shelters/?county=Collier&pet_friendly=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "Westside High", body[0]["name"])
	assert.Equal(t, "34102", body[0]["zip_code"])
	assert.Equal(t, 450.0, body[0]["capacity"])
	assert.Equal(t, true, body[0]["is_pet_friendly"])
	assert.NotContains(t, body[0], "id")

	require.Len(t, f.shelters.filters, 1)
	assert.Equal(t, "Collier", f.shelters.filters[0].County)
	require.NotNil(t, f.shelters.filters[0].PetFriendly)
	assert.True(t, *f.shelters.filters[0].PetFriendly)
}

func TestShelters_EmptyListAndNullCapacity(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.shelters.shelters = []domain.Shelter{}

	rec := f.get("/api/shelters/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	f.shelters.shelters = []domain.Shelter{{Name: "Armory"}}
	rec = f.get("/api/shelters/")
	assert.Contains(t, rec.Body.String(), `"capacity":null`)
	assert.Nil(t, f.shelters.filters[1].PetFriendly)
}

func TestShelters_BadPetFriendly(t *testing.T) {
	f := newFixture(t, nil, 0)

	rec := f.get("/api/shelters/?pet_friendly=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.shelters.filters)
}

func TestShelters_StoreError(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.shelters.err = errors.New("database is locked")

	rec := f.get("/api/shelters/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "locked")
}

func TestStorms_LegacyMap(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.storms.legacy = map[string]aggregate.LegacyStorm{
		"al01": {Advisory: "005", Cone: "/static/tracker/data/al01_cone_005.geojson", Name: "Iova"},
	}

	rec := f.get("/api/storms/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"al01":{"advisory":"005","cone":"/static/tracker/data/al01_cone_005.geojson","name":"Iova"}}`,
		rec.Body.String())
}

func TestStorms_LegacyMapEmpty(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.storms.legacy = map[string]aggregate.LegacyStorm{}

	rec := f.get("/api/storms/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestStormsGeoJSON(t *testing.T) {
	f := newFixture(t, nil, 0)
	feat := geojson.NewFeature(orb.Point{-80, 25})
	feat.Properties["stormId"] = "al01"
	f.storms.fc.Append(feat)

	rec := f.get("/api/storms.geojson")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "al01", fc.Features[0].Properties["stormId"])
}

func TestFeedPassthrough_UpstreamFailedIs200(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.storms.passthrough = aggregate.Passthrough{
		ByID:   map[string]string{},
		ByName: map[string]string{},
		Error:  aggregate.UpstreamFailed,
	}

	rec := f.get("/api/nhc/current")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"byId":{},"byName":{},"error":"upstream_failed"}`, rec.Body.String())
}

func TestFeedPassthrough(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.storms.passthrough = aggregate.Passthrough{
		ByID:   map[string]string{"al05": "Hurricane"},
		ByName: map[string]string{"erin": "Hurricane"},
	}

	rec := f.get("/api/nhc/current")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"byId":{"al05":"Hurricane"},"byName":{"erin":"Hurricane"}}`, rec.Body.String())
}

func TestStaticArtifacts(t *testing.T) {
	f := newFixture(t, nil, 0)
	require.NoError(t, os.WriteFile(filepath.Join(f.dataDir, "al01_cone_005.geojson"),
		[]byte(`{"type":"FeatureCollection","features":[]}`), 0o644))

	rec := f.get("/static/tracker/data/al01_cone_005.geojson")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, f.get("/static/tracker/data/missing.geojson").Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil, 0)

	req := httptest.NewRequest(http.MethodOptions, "/api/storms/", nil)
	req.Header.Set("Origin", "https://tracker.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	assert.Equal(t, "https://tracker.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/storms/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitByIP(t *testing.T) {
	f := newFixture(t, nil, 2)
	f.storms.legacy = map[string]aggregate.LegacyStorm{}

	assert.Equal(t, http.StatusOK, f.get("/api/storms/").Code)
	assert.Equal(t, http.StatusOK, f.get("/api/storms/").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.get("/api/storms/").Code)

	assert.Equal(t, http.StatusOK, f.get("/healthz").Code, "health checks are not rate limited")
}
