package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/quakemap/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS quakes (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	lat         REAL NOT NULL,
	lon         REAL NOT NULL,
	magnitude   REAL NOT NULL,
	depth_km    REAL NOT NULL DEFAULT 0,
	age         TEXT NOT NULL DEFAULT '',
	occurred_at DATETIME NOT NULL,
	country     TEXT NOT NULL DEFAULT '',
	on_land     INTEGER NOT NULL DEFAULT 0,
	first_seen  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	fetched     INTEGER NOT NULL DEFAULT 0,
	new_quakes  INTEGER NOT NULL DEFAULT 0,
	land_quakes INTEGER NOT NULL DEFAULT 0,
	sink_errors INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_quakes_country ON quakes(country);
CREATE INDEX IF NOT EXISTS idx_quakes_magnitude ON quakes(magnitude DESC);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertQuakes inserts new quakes and refreshes existing ones. It returns the
// ids of quakes that were not stored before, in input order.
func (s *SQLiteStore) UpsertQuakes(ctx context.Context, quakes []model.Quake) ([]string, error) {
	if len(quakes) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var inserted []string
	for _, q := range quakes {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO quakes (id, title, lat, lon, magnitude, depth_km, age, occurred_at, country, on_land, first_seen, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, q.Title, q.Location.Lat, q.Location.Lon, q.Magnitude, q.DepthKM, q.Age,
			q.Time.UTC(), q.Country, q.OnLand, now, now,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert quake %s", q.ID)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, q.ID)
			continue
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE quakes SET title = ?, lat = ?, lon = ?, magnitude = ?, depth_km = ?, age = ?,
			 occurred_at = ?, country = ?, on_land = ?, updated_at = ? WHERE id = ?`,
			q.Title, q.Location.Lat, q.Location.Lon, q.Magnitude, q.DepthKM, q.Age,
			q.Time.UTC(), q.Country, q.OnLand, now, q.ID,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: update quake %s", q.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit upsert")
	}
	return inserted, nil
}

const sqliteQuakeColumns = `id, title, lat, lon, magnitude, depth_km, age, occurred_at, country, on_land`

func (s *SQLiteStore) GetQuake(ctx context.Context, id string) (*model.Quake, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteQuakeColumns+` FROM quakes WHERE id = ?`, id)
	q, err := scanQuake(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: quake %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get quake %s", id)
	}
	return q, nil
}

func (s *SQLiteStore) ListQuakes(ctx context.Context, filter QuakeFilter) ([]model.Quake, error) {
	query := `SELECT ` + sqliteQuakeColumns + ` FROM quakes WHERE 1=1`
	var args []any

	if filter.Country != "" {
		query += ` AND country = ?`
		args = append(args, filter.Country)
	}
	if filter.OceanOnly {
		query += ` AND on_land = 0`
	}
	if filter.MinMag != 0 {
		query += ` AND magnitude >= ?`
		args = append(args, filter.MinMag)
	}
	if !filter.Since.IsZero() {
		query += ` AND occurred_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY magnitude DESC, occurred_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list quakes")
	}
	defer rows.Close() //nolint:errcheck

	var quakes []model.Quake
	for rows.Next() {
		q, err := scanQuake(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quake")
		}
		quakes = append(quakes, *q)
	}
	return quakes, eris.Wrap(rows.Err(), "sqlite: list quakes iterate")
}

func (s *SQLiteStore) CreateSyncRun(ctx context.Context, source string) (*model.SyncRun, error) {
	run := &model.SyncRun{
		ID:        uuid.New().String(),
		Source:    source,
		Status:    model.SyncStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, source, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Source, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert sync run")
	}
	return run, nil
}

// CompleteSyncRun stores the final counters and status of run. A running
// status is promoted to complete.
func (s *SQLiteStore) CompleteSyncRun(ctx context.Context, run *model.SyncRun) error {
	finishRun(run)
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = ?, fetched = ?, new_quakes = ?, land_quakes = ?, sink_errors = ?,
		 error = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), run.Fetched, run.New, run.LandQuakes, run.SinkErrors,
		run.Error, *run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete sync run %s", run.ID)
	}
	return checkRowsAffected(res, "sync run", run.ID)
}

func (s *SQLiteStore) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, status, fetched, new_quakes, land_quakes, sink_errors, error, started_at, finished_at
		 FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sync runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.SyncRun
	for rows.Next() {
		var (
			r        model.SyncRun
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Source, &r.Status, &r.Fetched, &r.New, &r.LandQuakes,
			&r.SinkErrors, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync run")
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list sync runs iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanQuake(row scannable) (*model.Quake, error) {
	var q model.Quake
	err := row.Scan(&q.ID, &q.Title, &q.Location.Lat, &q.Location.Lon, &q.Magnitude,
		&q.DepthKM, &q.Age, &q.Time, &q.Country, &q.OnLand)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// finishRun stamps FinishedAt and settles a still-running status.
func finishRun(run *model.SyncRun) {
	now := time.Now().UTC()
	run.FinishedAt = &now
	if run.Status == model.SyncStatusRunning || run.Status == "" {
		if run.Error != "" {
			run.Status = model.SyncStatusFailed
		} else {
			run.Status = model.SyncStatusComplete
		}
	}
}
