package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/quakemap/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS quakes`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertQuakes(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	qs := testQuakes()[:2]

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO quakes .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("a", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), "Chile", true, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectQuery(`INSERT INTO quakes`).
		WithArgs("b", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), "", false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))
	mock.ExpectCommit()

	ids, err := s.UpsertQuakes(context.Background(), qs)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertQuakes_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO quakes`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(eris.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.UpsertQuakes(context.Background(), testQuakes()[:1])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert quake a")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetQuake(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	when := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, title, lat, lon, magnitude, depth_km, age, occurred_at, country, on_land FROM quakes WHERE id = \$1`).
		WithArgs("a").
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "lat", "lon", "magnitude", "depth_km", "age", "occurred_at", "country", "on_land"}).
			AddRow("a", "M 4.1 - Chile", -33.0, -70.0, 4.1, 30.0, "Past Day", when, "Chile", true))

	q, err := s.GetQuake(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "M 4.1 - Chile", q.Title)
	assert.InDelta(t, -33.0, q.Location.Lat, 1e-9)
	assert.True(t, q.OnLand)
	assert.True(t, q.Time.Equal(when))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetQuake_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM quakes WHERE id = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetQuake(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateAndCompleteSyncRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO sync_runs`).
		WithArgs(pgxmock.AnyArg(), "feed.atom", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateSyncRun(ctx, "feed.atom")
	require.NoError(t, err)

	run.Fetched, run.New = 5, 2
	mock.ExpectExec(`UPDATE sync_runs SET status = \$1`).
		WithArgs("complete", 5, 2, 0, 0, "", pgxmock.AnyArg(), run.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.CompleteSyncRun(ctx, run))
	assert.Equal(t, model.SyncStatusComplete, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteSyncRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sync_runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteSyncRun(context.Background(), &model.SyncRun{ID: "ghost"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListQuakes_BuildsFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`AND country = \$1 AND NOT on_land AND magnitude >= \$2 ORDER BY magnitude DESC, occurred_at DESC LIMIT \$3`).
		WithArgs("Chile", 4.5, 20).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "lat", "lon", "magnitude", "depth_km", "age", "occurred_at", "country", "on_land"}))

	qs, err := s.ListQuakes(context.Background(), QuakeFilter{Country: "Chile", OceanOnly: true, MinMag: 4.5, Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, qs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListQuakes_NoLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM quakes WHERE true ORDER BY magnitude DESC, occurred_at DESC$`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "lat", "lon", "magnitude", "depth_km", "age", "occurred_at", "country", "on_land"}))

	_, err := s.ListQuakes(context.Background(), QuakeFilter{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEncodePoint(t *testing.T) {
	data, err := EncodePoint(model.Location{Lat: 35.5, Lon: 139.7})
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	pt, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, 4326, pt.SRID())
	assert.InDelta(t, 139.7, pt.X(), 1e-9)
	assert.InDelta(t, 35.5, pt.Y(), 1e-9)
}
