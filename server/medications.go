package server

import (
	"fmt"
	"net/http"

	medicationx "github.com/careloop/healthcoach/agent/medication"
)

func (s *Server) handleListMedications(w http.ResponseWriter, r *http.Request) {
	s.metrics.StoreOpsTotal.WithLabelValues("list").Inc()

	meds, err := s.medications.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list medications")
		return
	}
	if meds == nil {
		meds = []medicationx.Medication{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"medications": meds})
}

func (s *Server) handleDeleteMedication(w http.ResponseWriter, r *http.Request) {
	s.metrics.StoreOpsTotal.WithLabelValues("delete").Inc()

	deleted, err := s.medications.Delete(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete medication")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Medication not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Medication deleted successfully"})
}

func (s *Server) handleClearMedications(w http.ResponseWriter, r *http.Request) {
	s.metrics.StoreOpsTotal.WithLabelValues("clear").Inc()

	count, err := s.medications.Clear(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear medications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Cleared %d medications successfully", count),
	})
}
