package core

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBatch(t *testing.T) {
	body := `{
		"timestamp": "2026-03-10T09:30:00",
		"assemblies_count": 1,
		"assemblies": [{
			"order": " ORD-1 ",
			"taskId": "T-1",
			"status_str": null,
			"assembler": "Ivanov",
			"products": [{"lmCode": "LM1", "quantity": 3, "collected_quantity": 1, "title": null}]
		}],
		"system_info": {"database": "tracker_prod"}
	}`

	b, err := DecodeBatch(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), b.Timestamp.Time)
	assert.Equal(t, 1, *b.AssembliesCount)
	assert.Equal(t, "tracker_prod", b.sourceSystem())

	require.Len(t, b.Assemblies, 1)
	p := b.Assemblies[0]
	assert.False(t, p.Status.Valid, "null means absent")
	assert.Equal(t, "Ivanov", p.Assembler.String)
	assert.False(t, p.Products[0].Title.Valid)

	key, err := p.key()
	require.NoError(t, err)
	assert.Equal(t, AssemblyKey{OrderNumber: "ORD-1", TaskID: "T-1"}, key)
}

func TestDecodeBatch_EnvelopeErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
		wantMsg   string
	}{
		{"missing timestamp", `{"assemblies_count":0,"assemblies":[]}`, "timestamp", "required"},
		{"missing count", `{"timestamp":"2026-03-10T09:30:00","assemblies":[]}`, "assemblies_count", "required"},
		{"negative count", `{"timestamp":"2026-03-10T09:30:00","assemblies_count":-1,"assemblies":[]}`, "assemblies_count", "gte=0"},
		{"missing assemblies", `{"timestamp":"2026-03-10T09:30:00","assemblies_count":0}`, "assemblies", "required"},
		{"bad timestamp", `{"timestamp":"yesterday","assemblies_count":0,"assemblies":[]}`, "timestamp", "expected ISO-8601 datetime"},
		{"wrong type", `{"timestamp":"2026-03-10T09:30:00","assemblies_count":"2","assemblies":[]}`, "assemblies_count", "expected int"},
		{"truncated", `{"timestamp":`, "non_field_errors", "invalid json"},
		{"empty body", ``, "non_field_errors", "invalid json"},
		{"not an object", `[1,2]`, "non_field_errors", "expected core.Batch"},
		{"assemblies not a list", `{"timestamp":"2026-03-10T09:30:00","assemblies_count":0,"assemblies":{}}`, "assemblies", "expected"},
		{"second object", `{"timestamp":"2026-03-10T09:30:00","assemblies_count":0,"assemblies":[]}{"x":1}`, "non_field_errors", "unexpected data"},
		{"trailing garbage", `{"timestamp":"2026-03-10T09:30:00","assemblies_count":0,"assemblies":[]} }`, "non_field_errors", "unexpected data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBatch(strings.NewReader(tt.body))
			require.ErrorIs(t, err, ErrInvalidEnvelope)

			var env *EnvelopeError
			require.ErrorAs(t, err, &env)
			require.Contains(t, env.Fields, tt.wantField)
			assert.Contains(t, env.Fields[tt.wantField], tt.wantMsg)
		})
	}
}

func TestDecodeBatch_TrailingWhitespaceAccepted(t *testing.T) {
	_, err := DecodeBatch(strings.NewReader("{\"timestamp\":\"2026-03-10T09:30:00\",\"assemblies_count\":0,\"assemblies\":[]}\n\n"))
	assert.NoError(t, err)
}

func TestDecodeBatch_MistypedRecordsDeferred(t *testing.T) {
	body := `{
		"timestamp": "2026-03-10T09:30:00",
		"assemblies_count": 3,
		"assemblies": [
			{"order": "ORD-1", "taskId": "T-1", "products": [{"lmCode": "LM1", "quantity": "ten"}, {"lmCode": "LM2", "quantity": 1}]},
			{"order": 12345, "taskId": "T-2"},
			"not an object"
		]
	}`

	b, err := DecodeBatch(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, b.Assemblies, 3)

	first := b.Assemblies[0]
	_, err = first.key()
	require.NoError(t, err)
	require.Len(t, first.Products, 2)
	_, err = newLineItem(1, first.Products[0])
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "quantity", verr.Field)
	assert.Equal(t, "LM1", first.Products[0].ProductCode)
	_, err = newLineItem(1, first.Products[1])
	assert.NoError(t, err)

	_, err = b.Assemblies[1].key()
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "order", verr.Field)
	assert.Equal(t, "12345", b.Assemblies[1].Order)
	assert.Equal(t, "T-2", b.Assemblies[1].TaskID)

	_, err = b.Assemblies[2].key()
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "non_field_errors", verr.Field)
	assert.True(t, IsRecoverable(err))
}

func TestDecodeBatch_ReaderErrorPassesThrough(t *testing.T) {
	body := `{"timestamp":"2026-03-10T09:30:00","assemblies_count":0,"assemblies":[]}`
	r := http.MaxBytesReader(nil, io.NopCloser(strings.NewReader(body)), 10)

	_, err := DecodeBatch(r)
	var tooLarge *http.MaxBytesError
	require.True(t, errors.As(err, &tooLarge), "got %v", err)
	assert.False(t, errors.Is(err, ErrInvalidEnvelope))
}

func TestParseReportTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-10T09:30:00", time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)},
		{"2026-03-10T09:30:00.123456", time.Date(2026, 3, 10, 9, 30, 0, 123456000, time.UTC)},
		{"2026-03-10T09:30:00+03:00", time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC)},
		{"2026-03-10 09:30:00", time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseReportTime(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}

	_, err := ParseReportTime("10.03.2026")
	assert.Error(t, err)
}
