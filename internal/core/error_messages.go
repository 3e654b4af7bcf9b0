package core

// error_messages.go maps technical errors to user messages with support codes.
//
// Codes are grouped by category:
//
//	ING001 - System busy: every ingest slot is taken (ErrTooManyIngests)
//	ING002 - Batch timeout: the batch did not finish in time
//	ING003 - Invalid envelope: timestamp, assemblies_count or assemblies missing
//
//	VAL001 - Invalid record: a record broke a data rule (ErrValidation)
//	VAL002 - Invalid JSON: request body could not be decoded
//	VAL003 - Invalid parameter: query or path parameter malformed
//
//	DB001 - Duplicate key: natural-key collision (ErrConstraintViolation)
//	DB002 - Not found: requested row does not exist (ErrNotFound)
//	DB003 - Connection refused
//	DB004 - Connection reset
//	DB005 - Deadlock
//	DB006 - Storage failure: any other fatal storage error (ErrStorageFatal)
//
//	AUD001 - Duplicates block the unique natural-key migration
//
//	REQ001 - Request cancelled
//	REQ002 - Request body too large
//
//	RATE001 - Too many requests
//
//	ERR000 - Unknown error: check application logs for the original error
//
// Sentinel errors are matched first with errors.Is. Remaining errors are
// matched case-insensitively against patterns; the first match wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

// errorKind binds a sentinel error to its user message.
type errorKind struct {
	target error
	msg    UserMessage
}

// errorKinds are checked in order with errors.Is. Migration and timeout
// messages precede the generic storage failure they are usually wrapped in.
var errorKinds = []errorKind{
	{ErrTooManyIngests, UserMessage{"System is busy processing other batches", "Please wait a moment and try again", "ING001"}},
	{ErrDuplicatesBlockMigration, UserMessage{"Duplicate records prevent the schema upgrade", "Run 'pickctl audit repair' and migrate again", "AUD001"}},
	{ErrInvalidEnvelope, UserMessage{"The batch is missing required fields", "Send timestamp, assemblies_count and assemblies", "ING003"}},
	{ErrValidation, UserMessage{"A record failed validation", "Check quantities and required identifiers", "VAL001"}},
	{ErrConstraintViolation, UserMessage{"A record with this key already exists", "Retry the batch; duplicates are merged automatically", "DB001"}},
	{ErrNotFound, UserMessage{"Record not found", "Verify the identifier is correct", "DB002"}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched against the lowercased error text.
var errorPatterns = []errorPattern{
	{"context deadline exceeded", UserMessage{"Batch processing timed out", "Send smaller batches or try again later", "ING002"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "REQ001"}},
	{"request body too large", UserMessage{"Request body exceeds the size limit", "Split the batch into smaller requests", "REQ002"}},
	{"invalid json", UserMessage{"Request body is not valid JSON", "Check the payload format", "VAL002"}},
	{"invalid parameter", UserMessage{"A request parameter is malformed", "Check the parameter format", "VAL003"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB003"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB004"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB005"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// storageFailure is used for ErrStorageFatal when no pattern is more specific.
var storageFailure = UserMessage{"The batch could not be stored", "Please try again; nothing was saved", "DB006"}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if errors.Is(err, ErrStorageFatal) {
		return storageFailure
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
