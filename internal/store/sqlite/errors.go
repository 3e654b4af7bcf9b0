package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

// classify maps a driver error onto the core sentinels. op names the failed
// operation for the error message.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w: %w", op, core.ErrConstraintViolation, err)
		case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return fmt.Errorf("%s: %w: %w", op, core.ErrValidation, err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s: %w: %w", op, core.ErrNotFound, err)
		}
		// Primary code only: fall back to the message.
		if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			msg := se.Error()
			switch {
			case strings.Contains(msg, "UNIQUE"):
				return fmt.Errorf("%s: %w: %w", op, core.ErrConstraintViolation, err)
			case strings.Contains(msg, "FOREIGN KEY"):
				return fmt.Errorf("%s: %w: %w", op, core.ErrNotFound, err)
			default:
				return fmt.Errorf("%s: %w: %w", op, core.ErrValidation, err)
			}
		}
	}

	return fmt.Errorf("%w: %s: %w", core.ErrStorageFatal, op, err)
}

// affectedOne returns ErrNotFound when res touched no row.
func affectedOne(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return nil
}
