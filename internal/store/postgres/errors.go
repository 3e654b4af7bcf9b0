package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

// PostgreSQL SQLSTATE codes handled by classify.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
	classDataException      = "22"
)

// classify maps a pgx error onto the core sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, core.ErrConstraintViolation, err)
		case pgErr.Code == codeCheckViolation, pgErr.Code == codeNotNullViolation,
			strings.HasPrefix(pgErr.Code, classDataException):
			return fmt.Errorf("%s: %w: %w", op, core.ErrValidation, err)
		case pgErr.Code == codeForeignKeyViolation:
			return fmt.Errorf("%s: %w: %w", op, core.ErrNotFound, err)
		}
	}

	return fmt.Errorf("%w: %s: %w", core.ErrStorageFatal, op, err)
}

// affectedOne returns ErrNotFound when tag touched no row.
func affectedOne(op string, tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return nil
}
