package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"walletid/pkg/platform/sentinel"
)

// classify wraps a driver error with the sentinel describing whether a retry
// can help. Errors it does not recognize are returned unchanged and treated
// as transient by callers.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if kind := kindOf(err); kind != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return err
}

func kindOf(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, driver.ErrBadConn):
		return sentinel.ErrUnavailable
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// https://www.postgresql.org/docs/current/errcodes-appendix.html
		switch pqErr.Code.Class() {
		case "21", "22", "23":
			return sentinel.ErrConstraint
		case "42":
			return sentinel.ErrSchema
		case "40":
			return sentinel.ErrConflict
		case "08", "53", "57":
			return sentinel.ErrUnavailable
		}
		return nil
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return sentinel.ErrConflict
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_RANGE, sqlite3.SQLITE_TOOBIG:
			return sentinel.ErrConstraint
		case sqlite3.SQLITE_ERROR:
			return sentinel.ErrSchema
		case sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_FULL:
			return sentinel.ErrUnavailable
		}
	}
	return nil
}
