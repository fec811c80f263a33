package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// migrationLockWait bounds how long a process waits for another pawject
// process (serve, a CLI call, a project agent's callback) to finish migrating.
var migrationLockWait = 30 * time.Second

// ErrMigrationLocked is returned when the migration lock stays held past
// migrationLockWait.
var ErrMigrationLocked = errors.New("database is being migrated by another pawject process")

func migrationLockPath(dbPath string) string {
	return dbPath + ".migrate.lock"
}

// withMigrationLock runs fn while holding an exclusive flock next to the
// database file. The lock is polled without blocking so a wedged holder
// surfaces as ErrMigrationLocked instead of hanging every command.
func withMigrationLock(dbPath string, fn func() error) error {
	lockPath := migrationLockPath(dbPath)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // G304: lockPath derived from trusted dbPath
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", lockPath, err)
	}
	defer func() { _ = f.Close() }()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = migrationLockWait
	err = backoff.Retry(func() error {
		lerr := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if errors.Is(lerr, syscall.EWOULDBLOCK) {
			return lerr
		}
		if lerr != nil {
			return backoff.Permanent(lerr)
		}
		return nil
	}, b)
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return fmt.Errorf("%w (lock %s)", ErrMigrationLocked, lockPath)
	}
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	defer func() { _ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) }()

	return fn()
}
