package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func newMigrator(db *sql.DB) (*goose.Provider, error) {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations fs: %w", err)
	}
	// modernc registers as "sqlite"; goose only needs the dialect for SQL generation.
	p, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return p, nil
}

// MigrateDB applies pending migrations. File-backed databases migrate under
// a lock next to the db file, since the server and ad-hoc CLI calls may open
// the same file at once.
func MigrateDB(db *sql.DB, dbPath string) error {
	up := func() error {
		p, err := newMigrator(db)
		if err != nil {
			return err
		}
		if _, err := p.Up(context.Background()); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	}
	if strings.Contains(dbPath, ":memory:") {
		return up()
	}
	return withMigrationLock(dbPath, up)
}

// SchemaVersion reports the applied and newest embedded migration versions.
// An unmigrated database reports current 0.
func SchemaVersion(ctx context.Context, db *sql.DB) (current, latest int64, err error) {
	p, err := newMigrator(db)
	if err != nil {
		return 0, 0, err
	}
	if v, verr := p.GetDBVersion(ctx); verr == nil {
		current = v
	}
	for _, src := range p.ListSources() {
		latest = max(latest, src.Version)
	}
	return current, latest, nil
}
