package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"IncidentScanner/internal/config"
	"IncidentScanner/internal/ports"
)

// Opener opens one database session per pipeline invocation.
type Opener struct {
	cfg config.DatabaseConfig
}

var _ ports.StoreOpener = (*Opener)(nil)

// NewOpener wires the database settings.
func NewOpener(cfg config.DatabaseConfig) *Opener {
	return &Opener{cfg: cfg}
}

// Open connects and pings the database. Callers must Close the returned store.
func (o *Opener) Open(ctx context.Context) (ports.Store, error) {
	store, err := Open(ctx, o.cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Open connects to the configured driver and returns a ready Store.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	driver, dsn, placeholder, err := driverFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if cfg.Driver == config.DriverSQLite {
		// one writer keeps sqlite from returning SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return NewStore(db, cfg.Driver, placeholder), nil
}

func driverFor(cfg config.DatabaseConfig) (string, string, sq.PlaceholderFormat, error) {
	dsn := cfg.ConnString()
	switch cfg.Driver {
	case config.DriverPostgres, "":
		return "postgres", dsn, sq.Dollar, nil
	case config.DriverSQLite:
		if dsn == "" {
			return "", "", nil, fmt.Errorf("sqlite database path is empty")
		}
		if !strings.Contains(dsn, "_time_format") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_time_format=sqlite"
		}
		return "sqlite", dsn, sq.Question, nil
	default:
		return "", "", nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
