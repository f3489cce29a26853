package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/quakemap/internal/model"
)

// PostgresStore implements Store using pgxpool. Quake epicenters are also
// kept as PostGIS points for spatial queries outside this service.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS quakes (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	lat         DOUBLE PRECISION NOT NULL,
	lon         DOUBLE PRECISION NOT NULL,
	magnitude   DOUBLE PRECISION NOT NULL,
	depth_km    DOUBLE PRECISION NOT NULL DEFAULT 0,
	age         TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL,
	country     TEXT NOT NULL DEFAULT '',
	on_land     BOOLEAN NOT NULL DEFAULT false,
	geom        geometry(Point, 4326),
	first_seen  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	fetched     INTEGER NOT NULL DEFAULT 0,
	new_quakes  INTEGER NOT NULL DEFAULT 0,
	land_quakes INTEGER NOT NULL DEFAULT 0,
	sink_errors INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_quakes_country ON quakes(country);
CREATE INDEX IF NOT EXISTS idx_quakes_magnitude ON quakes(magnitude DESC);
CREATE INDEX IF NOT EXISTS idx_quakes_geom ON quakes USING gist (geom);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// upsertQuakeSQL reports through xmax whether the row was freshly inserted.
const upsertQuakeSQL = `
INSERT INTO quakes (id, title, lat, lon, magnitude, depth_km, age, occurred_at, country, on_land, geom, first_seen, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, ST_GeomFromEWKB($11), $12, $12)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	lat = EXCLUDED.lat,
	lon = EXCLUDED.lon,
	magnitude = EXCLUDED.magnitude,
	depth_km = EXCLUDED.depth_km,
	age = EXCLUDED.age,
	occurred_at = EXCLUDED.occurred_at,
	country = EXCLUDED.country,
	on_land = EXCLUDED.on_land,
	geom = EXCLUDED.geom,
	updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0) AS inserted`

// UpsertQuakes inserts new quakes and refreshes existing ones in a single
// transaction. It returns the ids of quakes that were not stored before.
func (s *PostgresStore) UpsertQuakes(ctx context.Context, quakes []model.Quake) ([]string, error) {
	if len(quakes) == 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	var inserted []string
	for _, q := range quakes {
		point, err := EncodePoint(q.Location)
		if err != nil {
			return nil, err
		}
		var isNew bool
		err = tx.QueryRow(ctx, upsertQuakeSQL,
			q.ID, q.Title, q.Location.Lat, q.Location.Lon, q.Magnitude, q.DepthKM, q.Age,
			q.Time.UTC(), q.Country, q.OnLand, point, now,
		).Scan(&isNew)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: upsert quake %s", q.ID)
		}
		if isNew {
			inserted = append(inserted, q.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit upsert")
	}
	return inserted, nil
}

// EncodePoint returns the EWKB encoding of loc with SRID 4326.
func EncodePoint(loc model.Location) ([]byte, error) {
	pt := geom.NewPointFlat(geom.XY, []float64{loc.Lon, loc.Lat}).SetSRID(4326)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode point")
	}
	return data, nil
}

const pgQuakeColumns = `id, title, lat, lon, magnitude, depth_km, age, occurred_at, country, on_land`

func (s *PostgresStore) GetQuake(ctx context.Context, id string) (*model.Quake, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgQuakeColumns+` FROM quakes WHERE id = $1`, id)
	q, err := scanQuake(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: quake %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get quake %s", id)
	}
	return q, nil
}

func (s *PostgresStore) ListQuakes(ctx context.Context, filter QuakeFilter) ([]model.Quake, error) {
	query := `SELECT ` + pgQuakeColumns + ` FROM quakes WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Country != "" {
		query += fmt.Sprintf(` AND country = $%d`, argIdx)
		args = append(args, filter.Country)
		argIdx++
	}
	if filter.OceanOnly {
		query += ` AND NOT on_land`
	}
	if filter.MinMag != 0 {
		query += fmt.Sprintf(` AND magnitude >= $%d`, argIdx)
		args = append(args, filter.MinMag)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND occurred_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY magnitude DESC, occurred_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list quakes")
	}
	defer rows.Close()

	var quakes []model.Quake
	for rows.Next() {
		q, err := scanQuake(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan quake")
		}
		quakes = append(quakes, *q)
	}
	return quakes, eris.Wrap(rows.Err(), "postgres: list quakes iterate")
}

func (s *PostgresStore) CreateSyncRun(ctx context.Context, source string) (*model.SyncRun, error) {
	run := &model.SyncRun{
		ID:        uuid.New().String(),
		Source:    source,
		Status:    model.SyncStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_runs (id, source, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Source, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert sync run")
	}
	return run, nil
}

// CompleteSyncRun stores the final counters and status of run.
func (s *PostgresStore) CompleteSyncRun(ctx context.Context, run *model.SyncRun) error {
	finishRun(run)
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_runs SET status = $1, fetched = $2, new_quakes = $3, land_quakes = $4, sink_errors = $5,
		 error = $6, finished_at = $7 WHERE id = $8`,
		string(run.Status), run.Fetched, run.New, run.LandQuakes, run.SinkErrors,
		run.Error, *run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete sync run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "sync run %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, status, fetched, new_quakes, land_quakes, sink_errors, error, started_at, finished_at
		 FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limitOrDefault(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sync runs")
	}
	defer rows.Close()

	var runs []model.SyncRun
	for rows.Next() {
		var r model.SyncRun
		if err := rows.Scan(&r.ID, &r.Source, &r.Status, &r.Fetched, &r.New, &r.LandQuakes,
			&r.SinkErrors, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list sync runs iterate")
}
