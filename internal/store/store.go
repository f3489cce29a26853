// Package store persists quakes and sync runs in SQLite or Postgres.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quakemap/internal/model"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a quake or sync run does not exist.
var ErrNotFound = eris.New("store: not found")

// defaultLimit caps sync-run listings that do not set a limit.
const defaultLimit = 100

// QuakeFilter specifies criteria for listing stored quakes. Results are
// ordered by magnitude descending, then most recent first. A Limit of zero
// or less returns every match.
type QuakeFilter struct {
	Country   string    `json:"country,omitempty"`
	OceanOnly bool      `json:"ocean_only,omitempty"`
	MinMag    float64   `json:"min_mag,omitempty"`
	Since     time.Time `json:"since,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// Store defines quake persistence.
type Store interface {
	// Quakes
	UpsertQuakes(ctx context.Context, quakes []model.Quake) ([]string, error)
	GetQuake(ctx context.Context, id string) (*model.Quake, error)
	ListQuakes(ctx context.Context, filter QuakeFilter) ([]model.Quake, error)

	// Sync runs
	CreateSyncRun(ctx context.Context, source string) (*model.SyncRun, error)
	CompleteSyncRun(ctx context.Context, run *model.SyncRun) error
	ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the store for the given driver.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "":
		return NewSQLite(dsn)
	case DriverPostgres, "postgresql", "pgx":
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	return n
}
