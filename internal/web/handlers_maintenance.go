package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

// handleClearOldData deletes assemblies created more than ?days (default 30)
// ago.
func (s *Server) handleClearOldData(w http.ResponseWriter, r *http.Request) {
	days, err := parseIntParam(r, "days", core.DefaultRetentionDays, 1)
	if err != nil {
		respondError(w, r, err)
		return
	}

	deleted, cutoff, err := s.service.PurgeOlderThan(r.Context(), days)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, map[string]any{
		"status":        "success",
		"message":       fmt.Sprintf("Deleted %d records older than %d days", deleted, days),
		"deleted_count": deleted,
		"cutoff_date":   cutoff,
	})
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", core.DefaultListLimit, 1)
	if err != nil {
		respondError(w, r, err)
		return
	}
	batches, err := s.service.RecentBatches(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"status": "success", "count": len(batches), "results": batches})
}

// handleHealth reports liveness, and storage reachability when a Pinger is
// configured.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status": "ok",
		"ingest": s.service.Limiter().Status(),
	}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			body["status"] = "unavailable"
			body["database"] = core.MapError(err).Message
			writeJSONStatus(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "ok"
	}
	writeJSON(w, body)
}
