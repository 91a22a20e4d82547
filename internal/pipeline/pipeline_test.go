package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/storm-tracker-service/internal/adapter/filestore"
	"github.com/couchcryptid/storm-tracker-service/internal/adapter/shapefile"
	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	"github.com/couchcryptid/storm-tracker-service/internal/observability"
	"github.com/couchcryptid/storm-tracker-service/internal/pipeline"
	"github.com/couchcryptid/storm-tracker-service/internal/testfixture"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeFeed struct {
	storms []domain.ActiveStorm
	err    error
}

func (f *fakeFeed) FetchActiveStorms(_ context.Context) ([]domain.ActiveStorm, error) {
	return f.storms, f.err
}

type fakeFetcher struct {
	mu       sync.Mutex
	archives map[string][]byte
	calls    []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url, dir, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	data, ok := f.archives[url]
	if !ok {
		return "", fmt.Errorf("%w: status 404 from %s", domain.ErrArchiveFetchFailed, url)
	}
	path := filepath.Join(dir, name)
	return path, os.WriteFile(path, data, 0o644)
}

type fakePublisher struct {
	events []domain.AdvisoryEvent
	err    error
}

func (p *fakePublisher) PublishAdvisories(_ context.Context, events []domain.AdvisoryEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

// The artifact store port is expressed in domain types only.
var _ pipeline.ArtifactStore = (*filestore.Store)(nil)

type harness struct {
	ingestor   *pipeline.Ingestor
	store      *filestore.Store
	feed       *fakeFeed
	fetcher    *fakeFetcher
	publisher  *fakePublisher
	metrics    *observability.Metrics
	dataDir    string
	scratchDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		feed:       &fakeFeed{},
		fetcher:    &fakeFetcher{archives: map[string][]byte{}},
		publisher:  &fakePublisher{},
		metrics:    observability.NewMetricsForTesting(),
		dataDir:    filepath.Join(root, "data"),
		scratchDir: filepath.Join(root, "tmp_download"),
	}
	h.store = filestore.New(h.dataDir, h.scratchDir, filepath.Join(h.dataDir, "storm_names.json"), logger)
	h.ingestor = pipeline.New(h.feed, h.fetcher, shapefile.NewConverter(logger), h.store, h.publisher, logger, h.metrics)
	return h
}

func (h *harness) serve(t *testing.T, url, stormID, advisory string, opts testfixture.ArchiveOptions) {
	t.Helper()
	attrs := testfixture.Attrs{StormName: "TEST", StormType: "HU", Advisory: advisory}
	h.fetcher.archives[url] = testfixture.BuildArchive(t, stormID, advisory, attrs, opts)
}

func (h *harness) seed(t *testing.T, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(h.dataDir, 0o755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(h.dataDir, name), []byte(`{"type":"FeatureCollection","features":[]}`), 0o644))
	}
}

func (h *harness) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.dataDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".geojson" {
			names = append(names, e.Name())
		}
	}
	return names
}

// --- tests ---

func TestIngestor_Run_HappyPath(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2025, time.August, 18, 15, 0, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	h := newHarness(t)
	h.feed.storms = []domain.ActiveStorm{
		{ID: "AL052025", Name: "Erin", StormType: "Hurricane", AdvisoryNumber: "012", ArchiveURL: "https://nhc.test/al05.zip"},
		{ID: "ep092025", AdvisoryNumber: "7", ArchiveURL: "https://nhc.test/ep09.zip"},
	}
	h.serve(t, "https://nhc.test/al05.zip", "al052025", "012", testfixture.ArchiveOptions{})
	h.serve(t, "https://nhc.test/ep09.zip", "ep092025", "7", testfixture.ArchiveOptions{Kinds: []domain.Kind{domain.KindTrack}})
	h.seed(t, "al012025_cone_003.geojson", "readme.geojson")

	report, err := h.ingestor.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"al052025_cone_012.geojson",
		"al052025_track_012.geojson",
		"ep092025_track_7.geojson",
		"readme.geojson",
	}, h.files(t))
	assert.Equal(t, []string{"al012025_cone_003.geojson"}, report.Evicted)
	assert.Len(t, report.Written, 3)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 2, report.Active)
	assert.NotEmpty(t, report.RunID)

	names, err := h.store.ReadNameTable()
	require.NoError(t, err)
	if diff := cmp.Diff(domain.NameTable{
		"al052025": {Name: "Erin", Type: "Hurricane"},
		"ep092025": {Name: "ep092025"},
	}, names); diff != "" {
		t.Fatalf("name table mismatch (-want +got):\n%s", diff)
	}

	_, statErr := os.Stat(h.scratchDir)
	assert.True(t, os.IsNotExist(statErr), "scratch workspace should be removed")

	require.Len(t, h.publisher.events, 3)
	first := h.publisher.events[0]
	assert.Equal(t, report.RunID, first.RunID)
	assert.Equal(t, "al052025", first.StormID)
	assert.Equal(t, domain.KindCone, first.Kind)
	assert.Equal(t, "al052025_cone_012.geojson", first.FileName)
	assert.Equal(t, 1, first.FeatureCount)
	assert.Equal(t, fakeClock.Now(), first.IngestedAt)
	assert.Equal(t, 3, report.Published)

	require.NoError(t, h.ingestor.CheckReadiness(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.IngestRuns.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ArtifactsWritten.WithLabelValues("cone")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.ArtifactsWritten.WithLabelValues("track")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ArtifactsEvicted))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.EventsPublished))
}

func TestIngestor_Run_FeedUnavailableAbortsWithoutWrites(t *testing.T) {
	h := newHarness(t)
	h.feed.err = fmt.Errorf("%w: dial tcp: timeout", domain.ErrFeedUnavailable)
	h.seed(t, "al012025_cone_003.geojson")

	_, err := h.ingestor.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrFeedUnavailable)

	assert.Equal(t, []string{"al012025_cone_003.geojson"}, h.files(t))
	_, statErr := os.Stat(filepath.Join(h.dataDir, "storm_names.json"))
	assert.True(t, os.IsNotExist(statErr))
	require.Error(t, h.ingestor.CheckReadiness(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.IngestRuns.WithLabelValues("aborted")))
}

func TestIngestor_Run_EmptyFeedIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "al012025_cone_003.geojson")

	report, err := h.ingestor.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Written)
	assert.Empty(t, report.Evicted)
	assert.Equal(t, []string{"al012025_cone_003.geojson"}, h.files(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.IngestRuns.WithLabelValues("empty")))
	require.NoError(t, h.ingestor.CheckReadiness(context.Background()))
}

func TestIngestor_Run_IncompleteStormStaysActive(t *testing.T) {
	h := newHarness(t)
	h.feed.storms = []domain.ActiveStorm{
		{ID: "al062025", Name: "Fernand", AdvisoryNumber: "3"},
		{ID: "al072025", Name: "Gabrielle", ArchiveURL: "https://nhc.test/al07.zip"},
		{Name: "no id at all", AdvisoryNumber: "1", ArchiveURL: "https://nhc.test/none.zip"},
	}
	h.seed(t, "al062025_cone_002.geojson", "al072025_track_001.geojson", "al012025_cone_003.geojson")

	report, err := h.ingestor.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, h.fetcher.calls)
	assert.Equal(t, []string{"al062025", "al072025"}, report.Incomplete)
	assert.Equal(t, []string{"al062025_cone_002.geojson", "al072025_track_001.geojson"}, h.files(t))

	names, err := h.store.ReadNameTable()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestIngestor_Run_IsolatesPerStormFailures(t *testing.T) {
	h := newHarness(t)
	h.feed.storms = []domain.ActiveStorm{
		{ID: "al042025", Name: "Dexter", AdvisoryNumber: "9", ArchiveURL: "https://nhc.test/missing.zip"},
		{ID: "al_bad", Name: "Bad", AdvisoryNumber: "1", ArchiveURL: "https://nhc.test/bad.zip"},
		{ID: "al052025", Name: "Erin", AdvisoryNumber: "012", ArchiveURL: "https://nhc.test/al05.zip"},
	}
	h.serve(t, "https://nhc.test/al05.zip", "al052025", "012", testfixture.ArchiveOptions{})

	report, err := h.ingestor.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Failures, 2)
	assert.Equal(t, domain.StageFetch, report.Failures[0].Stage)
	require.ErrorIs(t, report.Failures[0], domain.ErrArchiveFetchFailed)
	assert.Equal(t, domain.StageValidate, report.Failures[1].Stage)
	require.ErrorIs(t, report.Failures[1], domain.ErrInvalidToken)

	assert.Len(t, report.Written, 2)
	assert.Equal(t, []string{"https://nhc.test/missing.zip", "https://nhc.test/al05.zip"}, h.fetcher.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StormFailures.WithLabelValues("fetch")))

	names, err := h.store.ReadNameTable()
	require.NoError(t, err)
	assert.Contains(t, names, "al042025", "failed storms keep their name entry")
}

func TestIngestor_Run_StaleAdvisoryRejectedPerKind(t *testing.T) {
	h := newHarness(t)
	h.feed.storms = []domain.ActiveStorm{
		{ID: "al052025", Name: "Erin", AdvisoryNumber: "012", ArchiveURL: "https://nhc.test/al05.zip"},
	}
	h.serve(t, "https://nhc.test/al05.zip", "al052025", "012", testfixture.ArchiveOptions{})
	h.seed(t, "al052025_cone_013.geojson", "al052025_track_011.geojson")

	report, err := h.ingestor.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, domain.StageStore, report.Failures[0].Stage)
	assert.Equal(t, domain.KindCone, report.Failures[0].Kind)
	require.ErrorIs(t, report.Failures[0], domain.ErrStaleAdvisory)

	assert.Equal(t, 1, report.Superseded)
	assert.Equal(t, []string{"al052025_cone_013.geojson", "al052025_track_012.geojson"}, h.files(t))
}

func TestIngestor_Run_ArchiveWithoutLayers(t *testing.T) {
	h := newHarness(t)
	h.feed.storms = []domain.ActiveStorm{
		{ID: "al052025", Name: "Erin", AdvisoryNumber: "012", ArchiveURL: "https://nhc.test/al05.zip"},
	}
	h.serve(t, "https://nhc.test/al05.zip", "al052025", "012", testfixture.ArchiveOptions{Kinds: []domain.Kind{}})

	report, err := h.ingestor.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Written)
	assert.Empty(t, report.Failures)
}

func TestIngestor_Run_MissingAttributeTableStillConverts(t *testing.T) {
	h := newHarness(t)
	h.feed.storms = []domain.ActiveStorm{
		{ID: "al052025", Name: "Erin", AdvisoryNumber: "012", ArchiveURL: "https://nhc.test/al05.zip"},
	}
	h.serve(t, "https://nhc.test/al05.zip", "al052025", "012", testfixture.ArchiveOptions{
		Omit: []string{"al052025-012_5day_pgn.dbf", "al052025-012_5day_pgn.shx"},
	})

	report, err := h.ingestor.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Written, 2)
}

func TestIngestor_Run_PublishFailureDoesNotFailRun(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("broker down")
	h.feed.storms = []domain.ActiveStorm{
		{ID: "al052025", Name: "Erin", AdvisoryNumber: "012", ArchiveURL: "https://nhc.test/al05.zip"},
	}
	h.serve(t, "https://nhc.test/al05.zip", "al052025", "012", testfixture.ArchiveOptions{})

	report, err := h.ingestor.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Published)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventPublishFailure))
}

func TestIngestor_Run_CancelledRunDoesNotEvict(t *testing.T) {
	h := newHarness(t)
	h.feed.storms = []domain.ActiveStorm{
		{ID: "al052025", Name: "Erin", AdvisoryNumber: "012", ArchiveURL: "https://nhc.test/al05.zip"},
	}
	h.seed(t, "al012025_cone_003.geojson")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.ingestor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"al012025_cone_003.geojson"}, h.files(t))
	assert.Empty(t, h.fetcher.calls)
}

func TestIngestor_Run_ReprocessingIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.feed.storms = []domain.ActiveStorm{
		{ID: "al052025", Name: "Erin", AdvisoryNumber: "012", ArchiveURL: "https://nhc.test/al05.zip"},
	}
	h.serve(t, "https://nhc.test/al05.zip", "al052025", "012", testfixture.ArchiveOptions{})

	_, err := h.ingestor.Run(context.Background())
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(h.dataDir, "al052025_cone_012.geojson"))
	require.NoError(t, err)

	report, err := h.ingestor.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Failures)
	after, err := os.ReadFile(filepath.Join(h.dataDir, "al052025_cone_012.geojson"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
