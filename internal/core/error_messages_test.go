package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "busy limiter",
			err:      ErrTooManyIngests,
			wantCode: "ING001",
		},
		{
			name:     "wrapped validation error",
			err:      fmt.Errorf("item 3: %w", &ValidationError{Field: "collected_quantity", Message: "exceeds quantity"}),
			wantCode: "VAL001",
		},
		{
			name:     "envelope error",
			err:      &EnvelopeError{Fields: map[string]string{"timestamp": "required"}},
			wantCode: "ING003",
		},
		{
			name:     "constraint violation",
			err:      fmt.Errorf("insert assembly: %w", ErrConstraintViolation),
			wantCode: "DB001",
		},
		{
			name:     "not found",
			err:      fmt.Errorf("assembly 7: %w", ErrNotFound),
			wantCode: "DB002",
		},
		{
			name:     "migration blocked wins over constraint",
			err:      fmt.Errorf("migration 2: %w: %w", ErrDuplicatesBlockMigration, ErrConstraintViolation),
			wantCode: "AUD001",
		},
		{
			name:     "timeout inside storage failure",
			err:      fmt.Errorf("%w: context deadline exceeded", ErrStorageFatal),
			wantCode: "ING002",
		},
		{
			name:     "connection refused",
			err:      fmt.Errorf("%w: dial tcp: connection refused", ErrStorageFatal),
			wantCode: "DB003",
		},
		{
			name:     "plain storage failure",
			err:      fmt.Errorf("%w: disk I/O error", ErrStorageFatal),
			wantCode: "DB006",
		},
		{
			name:     "rate limit",
			err:      errors.New("rate limit exceeded"),
			wantCode: "RATE001",
		},
		{
			name:     "case insensitive matching",
			err:      errors.New("DEADLOCK detected"),
			wantCode: "DB005",
		},
		{
			name:     "unknown error returns default",
			err:      errors.New("some random internal error"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Error("MapError() returned empty message")
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}

	got := FormatUserError(ErrTooManyIngests)
	want := "System is busy processing other batches (Code: ING001). Please wait a moment and try again"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil should not be user facing")
	}
	if !IsUserFacing(ErrNotFound) {
		t.Error("ErrNotFound should be user facing")
	}
	if IsUserFacing(errors.New("boom")) {
		t.Error("unknown error should not be user facing")
	}
}

func TestNewUserError(t *testing.T) {
	if NewUserError(nil) != nil {
		t.Fatal("NewUserError(nil) should be nil")
	}

	tech := fmt.Errorf("lookup: %w", ErrNotFound)
	ue := NewUserError(tech)
	if ue.User.Code != "DB002" {
		t.Errorf("code = %q, want DB002", ue.User.Code)
	}
	if !errors.Is(ue, ErrNotFound) {
		t.Error("UserError should unwrap to the technical error")
	}
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", &ValidationError{Field: "lmCode", Message: "required"}, true},
		{"constraint", fmt.Errorf("insert: %w", ErrConstraintViolation), true},
		{"not found", ErrNotFound, true},
		{"fatal", fmt.Errorf("%w: connection reset", ErrStorageFatal), false},
		{"fatal wrapping constraint", fmt.Errorf("%w: rollback failed: %w", ErrStorageFatal, ErrConstraintViolation), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecoverable(tt.err); got != tt.want {
				t.Errorf("IsRecoverable() = %v, want %v", got, tt.want)
			}
		})
	}
}
