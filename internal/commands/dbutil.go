package commands

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/dotcommander/pawject/internal/app"
	"github.com/dotcommander/pawject/internal/output"
	"github.com/dotcommander/pawject/internal/store"
)

// DB is an alias so command code doesn't need to import database/sql.
type DB = sql.DB

type printedError struct {
	err error
}

func (e printedError) Error() string {
	// The JSON error response is the output.
	return "error already printed"
}

func (e printedError) Unwrap() error { return e.err }

func openDB() (*DB, func(), error) {
	dbPath, err := app.GetDBPath()
	if err != nil {
		return nil, nil, err
	}

	db, err := store.InitDBWithPath(dbPath)
	if err != nil {
		return nil, nil, err
	}

	return db, func() { _ = db.Close() }, nil
}

func withDB(fn func(db *DB) error) error {
	db, closeDB, err := openDB()
	if err != nil {
		return cmdErr(err)
	}
	defer closeDB()

	if err := fn(db); err != nil {
		return cmdErr(err)
	}
	return nil
}

// cmdErr prints err as a JSON error response, logs it, and returns a
// printedError so Execute does not report it twice.
func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	var already printedError
	if errors.As(err, &already) {
		return err
	}
	attrs := []any{"error", err.Error()}
	var re store.RecoverableError
	if errors.As(err, &re) {
		attrs = append(attrs, "code", re.ErrorCode())
	}
	slog.Debug("command error", attrs...)
	_ = output.PrintError(err)
	return printedError{err: err}
}
