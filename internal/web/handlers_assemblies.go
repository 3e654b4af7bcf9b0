package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

// ListResponse is the body of the assembly list endpoint.
type ListResponse struct {
	Status  string                `json:"status"`
	Count   int                   `json:"count"`
	Results []core.AssemblyDetail `json:"results"`
}

// handleListAssemblies lists assemblies filtered by assembler (substring,
// case-insensitive), order, department_id and the inclusive report-date
// range date_from..date_to.
func (s *Server) handleListAssemblies(w http.ResponseWriter, r *http.Request) {
	loc := s.service.Location()
	q := r.URL.Query()

	from, err := parseDateParam(r, "date_from", loc)
	if err != nil {
		respondError(w, r, err)
		return
	}
	to, err := parseDateParam(r, "date_to", loc)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1)
	}
	limit, err := parseIntParam(r, "limit", core.DefaultListLimit, 1)
	if err != nil {
		respondError(w, r, err)
		return
	}

	results, err := s.service.ListAssemblies(r.Context(), core.AssemblyFilter{
		Assembler:    strings.TrimSpace(q.Get("assembler")),
		OrderNumber:  strings.TrimSpace(q.Get("order")),
		DepartmentID: strings.TrimSpace(q.Get("department_id")),
		From:         from,
		To:           to,
		Limit:        limit,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, ListResponse{Status: "success", Count: len(results), Results: results})
}

// TodayStatsResponse is the body of the today stats endpoint.
type TodayStatsResponse struct {
	core.DaySummary
	UniqueAssemblers int `json:"unique_assemblers"`
}

func (s *Server) handleTodayStats(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.TodaySummary(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, TodayStatsResponse{DaySummary: *summary, UniqueAssemblers: len(summary.Assemblers)})
}

func (s *Server) handleGetAssembly(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	detail, err := s.service.GetAssembly(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, detail)
}

// blackListRequest toggles the flag when BlackListed is omitted.
type blackListRequest struct {
	BlackListed *bool `json:"black_listed"`
}

func (s *Server) handleSetBlackList(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req blackListRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			respondError(w, r, fmt.Errorf("%w: invalid json body: %v", errBadRequest, err))
			return
		}
	}

	var value bool
	if req.BlackListed != nil {
		value = *req.BlackListed
	} else {
		current, err := s.service.GetAssembly(r.Context(), id)
		if err != nil {
			respondError(w, r, err)
			return
		}
		value = !current.BlackListed
	}

	if err := s.service.SetBlackListed(r.Context(), id, value); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"status": "success", "id": id, "black_listed": value})
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	metrics, err := s.service.DeleteLineItem(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{
		"status":   "success",
		"message":  fmt.Sprintf("Product %d deleted", id),
		"assembly": metrics,
	})
}
