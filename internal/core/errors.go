package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a record that violates a data rule. The record is
	// skipped; the batch continues.
	ErrValidation = errors.New("validation failed")

	// ErrConstraintViolation is returned by a Store when a write collides with
	// a natural-key unique constraint.
	ErrConstraintViolation = errors.New("unique constraint violation")

	// ErrNotFound is returned by a Store when a requested row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStorageFatal marks a failure that aborts the whole transaction.
	ErrStorageFatal = errors.New("storage failure")

	// ErrTooManyIngests is returned when every ingest slot is busy and the
	// wait timeout expires. Clients should retry after a short delay.
	ErrTooManyIngests = errors.New("too many concurrent ingests, please try again later")

	// ErrInvalidEnvelope marks a batch rejected before any record was processed.
	ErrInvalidEnvelope = errors.New("invalid batch envelope")

	// ErrDuplicatesBlockMigration is returned by a store migration that
	// cannot add a unique natural-key index because duplicates exist.
	ErrDuplicatesBlockMigration = errors.New("duplicate natural keys block unique index; run 'pickctl audit repair' first")
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Message, e.Value)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// EnvelopeError carries the per-field problems of a rejected batch envelope.
// Fields maps the JSON field name to the failed rule.
type EnvelopeError struct {
	Fields map[string]string
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("%s: %d field(s) rejected", ErrInvalidEnvelope, len(e.Fields))
}

func (e *EnvelopeError) Unwrap() error {
	return ErrInvalidEnvelope
}

// IsRecoverable reports whether err only affects the record being processed.
// Recoverable errors roll back the record's savepoint and are counted as
// skipped. Anything wrapped in ErrStorageFatal is never recoverable.
func IsRecoverable(err error) bool {
	if err == nil || errors.Is(err, ErrStorageFatal) {
		return false
	}
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConstraintViolation) ||
		errors.Is(err, ErrNotFound)
}

// RecordError describes a record rejected during ingestion.
type RecordError struct {
	AssemblyIndex int    `json:"assembly_index"`
	ItemIndex     int    `json:"product_index"` // -1 for assembly-level errors
	OrderNumber   string `json:"order,omitempty"`
	TaskID        string `json:"taskId,omitempty"`
	ProductCode   string `json:"lmCode,omitempty"`
	Reason        string `json:"reason"`
}
