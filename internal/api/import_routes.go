package api

import (
	"errors"
	"net/http"

	"github.com/kjannette/finagg-backend/internal/models"
)

type importResponse struct {
	Message string                `json:"message"`
	Summary *models.ImportSummary `json:"summary"`
}

// handleImport loads the request body as a price file. The summary is returned
// on failure too, so callers can see how much was committed.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Importer == nil {
		writeError(w, http.StatusServiceUnavailable, "imports are not enabled")
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}
	body := http.MaxBytesReader(w, r.Body, s.maxImport)
	defer body.Close()

	sum, err := s.deps.Importer.RunReader(r.Context(), body, source)
	if err != nil {
		status := statusFor(err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		s.log.Warnw("import failed", "source", source, "status", status, "error", err)
		writeJSON(w, status, importResponse{Message: "Data import failed: " + err.Error(), Summary: sum})
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Message: "Data import completed successfully", Summary: sum})
}
