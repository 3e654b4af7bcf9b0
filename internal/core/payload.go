package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Batch is one ingestion request as sent by the tracking system.
//
// Envelope fields are pointers so that a missing field can be told apart from
// a zero value during validation.
type Batch struct {
	Timestamp       *ReportTime       `json:"timestamp" validate:"required"`
	AssembliesCount *int              `json:"assemblies_count" validate:"required,gte=0"`
	Assemblies      []AssemblyPayload `json:"assemblies" validate:"required"`
	SystemInfo      *SystemInfo       `json:"system_info,omitempty"`
}

// SystemInfo describes the sending system.
type SystemInfo struct {
	Database pgtype.Text `json:"database"`
}

// AssemblyPayload is one assembly record inside a batch.
type AssemblyPayload struct {
	Order     string            `json:"order"`
	TaskID    string            `json:"taskId"`
	Status    pgtype.Text       `json:"status_str"`
	Zone      pgtype.Text       `json:"assembly_zone"`
	Assembler pgtype.Text       `json:"assembler"`
	Products  []LineItemPayload `json:"products"`

	// decodeErr is set when the record could not be decoded. The assembly
	// is then skipped during ingestion instead of failing the batch.
	decodeErr error
}

// LineItemPayload is one product record inside an assembly payload.
// Absent quantities decode as 0.
type LineItemPayload struct {
	ProductCode       string      `json:"lmCode"`
	DepartmentID      pgtype.Text `json:"departmentId"`
	Title             pgtype.Text `json:"title"`
	Image             pgtype.Text `json:"image"`
	Quantity          int         `json:"quantity"`
	CollectedQuantity int         `json:"collected_quantity"`
	Source            pgtype.Text `json:"source"`

	decodeErr error
}

// UnmarshalJSON decodes one assembly record. A record with mistyped fields
// decodes without error; the problem is kept and reported when the record
// is ingested. Products decode independently of their assembly.
func (p *AssemblyPayload) UnmarshalJSON(data []byte) error {
	type plain AssemblyPayload
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		*p = AssemblyPayload{decodeErr: recordDecodeError(err)}
		p.Order, p.TaskID = salvageKey(data)
		return nil
	}
	*p = AssemblyPayload(v)
	return nil
}

// UnmarshalJSON decodes one product record, keeping any decode error for
// ingestion time like AssemblyPayload does.
func (p *LineItemPayload) UnmarshalJSON(data []byte) error {
	type plain LineItemPayload
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		*p = LineItemPayload{decodeErr: recordDecodeError(err)}
		var code struct {
			ProductCode string `json:"lmCode"`
		}
		_ = json.Unmarshal(data, &code)
		p.ProductCode = code.ProductCode
		return nil
	}
	*p = LineItemPayload(v)
	return nil
}

// recordDecodeError turns a decode failure of one record into a
// *ValidationError naming the offending field.
func recordDecodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return &ValidationError{Field: typeErr.Field, Value: typeErr.Value, Message: "expected " + typeErr.Type.String()}
	case errors.As(err, &typeErr):
		return &ValidationError{Field: "non_field_errors", Value: typeErr.Value, Message: "expected object"}
	default:
		return &ValidationError{Field: "non_field_errors", Message: err.Error()}
	}
}

// salvageKey reads order and taskId from a record that failed to decode so
// the rejection can still name it. Non-string values are kept as raw JSON.
func salvageKey(data []byte) (order, taskID string) {
	var raw struct {
		Order  json.RawMessage `json:"order"`
		TaskID json.RawMessage `json:"taskId"`
	}
	if json.Unmarshal(data, &raw) != nil {
		return "", ""
	}
	return rawText(raw.Order), rawText(raw.TaskID)
}

func rawText(m json.RawMessage) string {
	var s string
	if json.Unmarshal(m, &s) == nil {
		return s
	}
	return string(m)
}

// sourceSystem returns the batch's declared source, or DefaultSourceSystem.
func (b Batch) sourceSystem() string {
	if b.SystemInfo != nil && b.SystemInfo.Database.Valid {
		if s := strings.TrimSpace(b.SystemInfo.Database.String); s != "" {
			return s
		}
	}
	return DefaultSourceSystem
}

// key validates and returns the payload's natural key.
func (p AssemblyPayload) key() (AssemblyKey, error) {
	if p.decodeErr != nil {
		return AssemblyKey{}, p.decodeErr
	}
	key := AssemblyKey{
		OrderNumber: strings.TrimSpace(p.Order),
		TaskID:      strings.TrimSpace(p.TaskID),
	}
	if key.OrderNumber == "" {
		return key, &ValidationError{Field: "order", Value: p.Order, Message: "order number is required"}
	}
	if key.TaskID == "" {
		return key, &ValidationError{Field: "taskId", Value: p.TaskID, Message: "task id is required"}
	}
	return key, nil
}

// reportTimeLayouts are tried in order when decoding a batch timestamp.
// Values without a zone are interpreted as UTC.
var reportTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ReportTime is the batch timestamp. The tracking system sends ISO-8601 with
// or without a zone offset.
type ReportTime struct {
	time.Time
}

// UnmarshalJSON accepts the timestamp formats listed in reportTimeLayouts.
func (t *ReportTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	parsed, err := ParseReportTime(s)
	if err != nil {
		return &ValidationError{Field: "timestamp", Value: s, Message: "expected ISO-8601 datetime"}
	}
	t.Time = parsed
	return nil
}

// ParseReportTime parses a batch timestamp in any of the accepted formats.
func ParseReportTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range reportTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: expected ISO-8601", s)
}

// DecodeBatch reads one JSON batch from r and validates its envelope.
// Malformed JSON, trailing data and envelope type mismatches are reported as
// *EnvelopeError; errors of r itself (for example http.MaxBytesError) are
// returned unchanged. Mistyped assembly or product records do not fail the
// decode, they are skipped by Service.Ingest.
func DecodeBatch(r io.Reader) (Batch, error) {
	var b Batch
	dec := json.NewDecoder(r)
	if err := dec.Decode(&b); err != nil {
		return Batch{}, envelopeFromJSON(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		var syntaxErr *json.SyntaxError
		if err != nil && !errors.As(err, &syntaxErr) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return Batch{}, err
		}
		return Batch{}, &EnvelopeError{Fields: map[string]string{"non_field_errors": "unexpected data after the JSON object"}}
	}
	if err := ValidateBatch(b); err != nil {
		return Batch{}, err
	}
	return b, nil
}

func envelopeFromJSON(err error) error {
	var (
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
		valErr    *ValidationError
	)
	switch {
	case errors.As(err, &valErr):
		return &EnvelopeError{Fields: map[string]string{valErr.Field: valErr.Message}}
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "non_field_errors"
		}
		return &EnvelopeError{Fields: map[string]string{field: "expected " + typeErr.Type.String()}}
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return &EnvelopeError{Fields: map[string]string{"non_field_errors": "invalid json: " + err.Error()}}
	default:
		return err
	}
}
