package web

import (
	"fmt"
	"net/http"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

// IngestResponse is the success body of the ingestion endpoint.
type IngestResponse struct {
	Status   string             `json:"status"`
	Message  string             `json:"message"`
	BatchID  string             `json:"batch_id"`
	Stats    IngestStats        `json:"stats"`
	Rejected []core.RecordError `json:"rejected,omitempty"`
}

// IngestStats groups assembly and product counters.
type IngestStats struct {
	Assemblies core.AssemblyStats `json:"assemblies"`
	Products   core.ProductStats  `json:"products"`
}

// handleIngest accepts one batch of partially picked assemblies.
//
// 201 on commit (even when individual records were skipped), 400 when the
// envelope is malformed, 413 when the body exceeds the configured limit, 429
// when every ingest slot is busy and 503 when the batch was rolled back.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxBodySize)

	batch, err := core.DecodeBatch(r.Body)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.service.Ingest(withClient(r.Context(), r), batch)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSONStatus(w, http.StatusCreated, IngestResponse{
		Status:  "success",
		Message: ingestMessage(result),
		BatchID: result.BatchID,
		Stats: IngestStats{
			Assemblies: result.Assemblies,
			Products:   result.Products,
		},
		Rejected: result.Rejected,
	})
}

func ingestMessage(r *core.IngestResult) string {
	return fmt.Sprintf("Processed %d assemblies (%d new, %d updated), %d products (%d new, %d updated)",
		r.Assemblies.Total, r.Assemblies.Created, r.Assemblies.Updated,
		r.Products.Total, r.Products.Created, r.Products.Updated)
}

// handleIngestStatus reports the ingest limiter occupancy.
func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.Limiter().Status())
}
