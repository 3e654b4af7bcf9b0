package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		want        error
		recoverable bool
	}{
		{"no rows", pgx.ErrNoRows, core.ErrNotFound, true},
		{"unique", &pgconn.PgError{Code: "23505", ConstraintName: "assemblies_order_task_key"}, core.ErrConstraintViolation, true},
		{"check", &pgconn.PgError{Code: "23514"}, core.ErrValidation, true},
		{"not null", &pgconn.PgError{Code: "23502"}, core.ErrValidation, true},
		{"value too long", &pgconn.PgError{Code: "22001"}, core.ErrValidation, true},
		{"foreign key", &pgconn.PgError{Code: "23503"}, core.ErrNotFound, true},
		{"wrapped unique", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505"}), core.ErrConstraintViolation, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, core.ErrStorageFatal, false},
		{"connection", errors.New("dial tcp: connection refused"), core.ErrStorageFatal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.Equal(t, tt.recoverable, core.IsRecoverable(got))
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.NoError(t, classify("op", nil))
}

func TestAffectedOne(t *testing.T) {
	assert.ErrorIs(t, affectedOne("update", pgconn.NewCommandTag("UPDATE 0")), core.ErrNotFound)
	assert.NoError(t, affectedOne("update", pgconn.NewCommandTag("UPDATE 1")))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_sale\\x`, escapeLike(`50% off_sale\x`))
}
