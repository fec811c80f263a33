package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dotcommander/pawject/internal/app"
	_ "modernc.org/sqlite"
)

// busyTimeoutMS is the SQLite busy_timeout, overridable with PAWJECT_BUSY_TIMEOUT_MS.
func busyTimeoutMS() int {
	if v, err := strconv.Atoi(os.Getenv("PAWJECT_BUSY_TIMEOUT_MS")); err == nil && v > 0 {
		return v
	}
	return 5000
}

// connPragmas run on the single pooled connection before migrations.
// busy_timeout must come first so journal_mode=WAL waits on a held lock.
func connPragmas() []string {
	return []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMS()),
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
	}
}

// InitDB opens the database resolved by app.GetDBPath.
func InitDB() (*sql.DB, error) {
	dbPath, err := app.GetDBPath()
	if err != nil {
		return nil, err
	}
	return InitDBWithPath(dbPath)
}

// InitDBWithPath opens (creating if needed) the SQLite database at dbPath,
// applies connection pragmas and migrates it to the latest schema.
func InitDBWithPath(dbPath string) (*sql.DB, error) {
	if _, err := app.EnsureDBDir(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", normalizeSQLiteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}

	// The server, scheduler and supervisor share one process; a single
	// connection serializes writers and keeps claim transactions atomic.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	fail := func(err error) (*sql.DB, error) {
		_ = db.Close()
		return nil, err
	}

	ctx := context.Background()
	for _, pragma := range connPragmas() {
		err := RetryWithBackoff(func() error {
			_, err := db.ExecContext(ctx, pragma)
			return err
		})
		if err != nil {
			return fail(fmt.Errorf("%s: %w", pragma, err))
		}
	}

	if err := RetryWithBackoff(func() error { return MigrateDB(db, dbPath) }); err != nil {
		return fail(err)
	}
	return db, nil
}

// normalizeSQLiteDSN turns a plain path into a read/write/create file: URI.
// file: DSNs pass through and ":memory:" maps to a shared in-memory db.
func normalizeSQLiteDSN(dbPath string) string {
	switch {
	case strings.HasPrefix(dbPath, "file:"):
		return dbPath
	case dbPath == ":memory:":
		return "file::memory:?cache=shared"
	default:
		return "file:" + dbPath + "?mode=rwc"
	}
}
