package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/quakemap/internal/events"
	"github.com/sells-group/quakemap/internal/feed"
	"github.com/sells-group/quakemap/internal/fetcher"
	"github.com/sells-group/quakemap/internal/model"
	"github.com/sells-group/quakemap/internal/quake"
	"github.com/sells-group/quakemap/internal/resilience"
	"github.com/sells-group/quakemap/internal/store"
)

type fakeFeed struct {
	snaps     []*feed.Snapshot
	err       error
	calls     int
	committed []*feed.Snapshot
}

func (f *fakeFeed) Commit(snap *feed.Snapshot) { f.committed = append(f.committed, snap) }

func (f *fakeFeed) Source() string { return "test.atom" }

func (f *fakeFeed) Fetch(_ context.Context) (*feed.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls
	if i >= len(f.snaps) {
		i = len(f.snaps) - 1
	}
	f.calls++
	return f.snaps[i], nil
}

type mockArchiver struct{ mock.Mock }

func (m *mockArchiver) Put(ctx context.Context, runID string, t time.Time, raw []byte) (string, error) {
	args := m.Called(ctx, runID, t, raw)
	return args.String(0), args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, evs ...events.Event) error {
	args := m.Called(ctx, evs)
	return args.Error(0)
}

func squarelandClassifier() *quake.Classifier {
	mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{
		{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}},
	})
	return quake.NewClassifier([]model.Country{{Name: "Squareland", Geometry: mp}})
}

func syncQuakes() []model.Quake {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []model.Quake{
		{ID: "land", Title: "M 4.1", Location: model.Location{Lat: 5, Lon: 5}, Magnitude: 4.1, Time: now},
		{ID: "sea", Title: "M 5.3", Location: model.Location{Lat: -20, Lon: -170}, Magnitude: 5.3, Time: now},
	}
}

func newSyncTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

// failingStore fails the first failures upserts, then delegates.
type failingStore struct {
	*store.SQLiteStore
	failures int
}

func (s *failingStore) UpsertQuakes(ctx context.Context, quakes []model.Quake) ([]string, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("database is locked")
	}
	return s.SQLiteStore.UpsertQuakes(ctx, quakes)
}

func newTestSyncer(st syncStore, ff feedSource) *syncer {
	return &syncer{
		store:      st,
		feed:       ff,
		classifier: squarelandClassifier(),
		now:        func() time.Time { return time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC) },
	}
}

func TestSyncer_RunOnce(t *testing.T) {
	ctx := context.Background()
	st := newSyncTestStore(t)
	ff := &fakeFeed{snaps: []*feed.Snapshot{{Changed: true, Raw: []byte("<feed/>"), Quakes: syncQuakes()}}}

	arch := &mockArchiver{}
	arch.On("Put", mock.Anything, mock.Anything, mock.Anything, []byte("<feed/>")).Return("feeds/x.atom", nil).Once()
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(evs []events.Event) bool {
		return len(evs) == 2 && evs[0].Quake.ID == "land" && evs[0].Type == events.TypeQuakeNew
	})).Return(nil).Once()

	s := newTestSyncer(st, ff)
	s.archive = arch
	s.events = pub

	run, err := s.runOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusComplete, run.Status)
	assert.Equal(t, 2, run.Fetched)
	assert.Equal(t, 2, run.New)
	assert.Equal(t, 1, run.LandQuakes)
	assert.Zero(t, run.SinkErrors)
	require.NotNil(t, run.FinishedAt)

	got, err := st.GetQuake(ctx, "land")
	require.NoError(t, err)
	assert.True(t, got.OnLand)
	assert.Equal(t, "Squareland", got.Country)

	runs, err := st.ListSyncRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, 2, runs[0].New)

	arch.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestSyncer_SecondRunPublishesOnlyNew(t *testing.T) {
	ctx := context.Background()
	st := newSyncTestStore(t)

	second := append(syncQuakes(), model.Quake{
		ID: "late", Title: "M 3.0", Location: model.Location{Lat: 1, Lon: 1}, Magnitude: 3,
		Time: time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC),
	})
	ff := &fakeFeed{snaps: []*feed.Snapshot{
		{Changed: true, Quakes: syncQuakes()},
		{Changed: true, Quakes: second},
	}}

	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(evs []events.Event) bool { return len(evs) == 2 })).Return(nil).Once()
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(evs []events.Event) bool {
		return len(evs) == 1 && evs[0].Quake.ID == "late"
	})).Return(nil).Once()

	s := newTestSyncer(st, ff)
	s.events = pub

	_, err := s.runOnce(ctx)
	require.NoError(t, err)
	run, err := s.runOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Fetched)
	assert.Equal(t, 1, run.New)
	pub.AssertExpectations(t)
}

func TestSyncer_UnchangedFeed(t *testing.T) {
	st := newSyncTestStore(t)
	ff := &fakeFeed{snaps: []*feed.Snapshot{{Changed: false, ETag: `"abc"`}}}

	run, err := newTestSyncer(st, ff).runOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusComplete, run.Status)
	assert.Zero(t, run.Fetched)
	assert.Zero(t, run.New)
}

func TestSyncer_SinkFailureCounted(t *testing.T) {
	st := newSyncTestStore(t)
	ff := &fakeFeed{snaps: []*feed.Snapshot{{Changed: true, Quakes: syncQuakes()}}}

	arch := &mockArchiver{}
	arch.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("bucket gone"))
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	s := newTestSyncer(st, ff)
	s.archive = arch
	s.events = pub

	run, err := s.runOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusComplete, run.Status)
	assert.Equal(t, 2, run.SinkErrors)
	assert.Equal(t, 2, run.New, "store writes still happen")
}

func TestSyncer_StrictSinkFailureFailsRun(t *testing.T) {
	ctx := context.Background()
	st := newSyncTestStore(t)
	ff := &fakeFeed{snaps: []*feed.Snapshot{{Changed: true, Quakes: syncQuakes()}}}

	arch := &mockArchiver{}
	arch.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("bucket gone"))

	s := newTestSyncer(st, ff)
	s.archive = arch
	s.strict = true

	run, err := s.runOnce(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive sink")
	assert.Equal(t, model.SyncStatusFailed, run.Status)
	assert.Equal(t, 1, run.SinkErrors)

	_, err = st.GetQuake(ctx, "land")
	assert.ErrorIs(t, err, store.ErrNotFound, "strict failure stops before the upsert")

	runs, err := st.ListSyncRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.SyncStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "bucket gone")
}

func TestSyncer_StoreFailureRetriesSameDocument(t *testing.T) {
	ctx := context.Background()
	sample, err := os.ReadFile(testFeedPath)
	require.NoError(t, err)

	var notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(sample)
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		RequestsPerSecond: 1000,
		Retry:             resilience.RetryConfig{MaxAttempts: 1},
	})
	st := &failingStore{SQLiteStore: newSyncTestStore(t), failures: 1}
	s := newTestSyncer(st, feed.NewClient(f, srv.URL+"/2.5_week.atom"))

	first, err := s.runOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SinkErrors)
	assert.Zero(t, first.New)

	second, err := s.runOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, second.Fetched, "document is fetched again after the failed upsert")
	assert.Equal(t, 4, second.New)
	assert.Zero(t, second.SinkErrors)
	assert.Zero(t, notModified.Load())

	stored, err := st.ListQuakes(ctx, store.QuakeFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	third, err := s.runOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, third.Fetched)
	assert.Equal(t, int32(1), notModified.Load())
}

func TestSyncer_CommitsOnlyAfterUpsert(t *testing.T) {
	snap := &feed.Snapshot{Changed: true, ETag: `"x"`, Quakes: syncQuakes()}
	ff := &fakeFeed{snaps: []*feed.Snapshot{snap}}
	st := &failingStore{SQLiteStore: newSyncTestStore(t), failures: 1}
	s := newTestSyncer(st, ff)

	_, err := s.runOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ff.committed)

	_, err = s.runOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, ff.committed, 1)
	assert.Same(t, snap, ff.committed[0])
}

func TestSyncer_FetchErrorRecordsFailedRun(t *testing.T) {
	ctx := context.Background()
	st := newSyncTestStore(t)
	ff := &fakeFeed{err: errors.New("dns failure")}

	run, err := newTestSyncer(st, ff).runOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, model.SyncStatusFailed, run.Status)
	assert.Contains(t, run.Error, "dns failure")
}

func TestSyncer_LoopRunsOnceWithoutInterval(t *testing.T) {
	st := newSyncTestStore(t)
	ff := &fakeFeed{snaps: []*feed.Snapshot{{Changed: true, Quakes: syncQuakes()}}}

	require.NoError(t, newTestSyncer(st, ff).loop(context.Background(), 0))
	assert.Equal(t, 1, ff.calls)
}

func TestSyncer_LoopPollsUntilCancelled(t *testing.T) {
	st := newSyncTestStore(t)
	ff := &fakeFeed{snaps: []*feed.Snapshot{{Changed: true, Quakes: syncQuakes()}}}
	s := newTestSyncer(st, ff)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	require.NoError(t, s.loop(ctx, 20*time.Millisecond))

	runs, err := st.ListSyncRuns(context.Background(), 100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(runs), 2)
}

func TestSyncer_LoopFailureWithoutInterval(t *testing.T) {
	st := newSyncTestStore(t)
	ff := &fakeFeed{err: errors.New("offline")}

	err := newTestSyncer(st, ff).loop(context.Background(), 0)
	assert.Error(t, err)
}

func TestSelectByID(t *testing.T) {
	got := selectByID(syncQuakes(), []string{"sea"})
	require.Len(t, got, 1)
	assert.Equal(t, "sea", got[0].ID)
	assert.Empty(t, selectByID(syncQuakes(), nil))
}
