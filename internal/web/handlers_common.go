package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// errBadRequest marks malformed query or path parameters.
var errBadRequest = errors.New("invalid parameter")

// parseIntParam parses an integer query parameter with a default value.
// Values below min are rejected.
func parseIntParam(r *http.Request, name string, defaultVal, minVal int) (int, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < minVal {
		return 0, fmt.Errorf("%w: %s must be an integer >= %d", errBadRequest, name, minVal)
	}
	return i, nil
}

// parseDateParam parses a YYYY-MM-DD query parameter as midnight in loc.
// The zero time means the parameter was absent.
func parseDateParam(r *http.Request, name string, loc *time.Location) (time.Time, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, val, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", errBadRequest, name)
	}
	return t, nil
}

// idParam parses the positive integer path parameter {id}.
func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive integer", errBadRequest)
	}
	return id, nil
}

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON with the given status. Encoding errors
// are logged since headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
