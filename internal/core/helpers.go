package core

import (
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// maxRejectedReported caps IngestResult.Rejected. Counters stay exact.
const maxRejectedReported = 100

// overwriteText replaces dst with src when src carries a non-blank value.
func overwriteText(dst *pgtype.Text, src pgtype.Text) {
	if src.Valid && strings.TrimSpace(src.String) != "" {
		*dst = src
	}
}

// Text returns a valid pgtype.Text holding s.
func Text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: true}
}
