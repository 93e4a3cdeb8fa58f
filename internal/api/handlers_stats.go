package api

import (
	"net/http"
	"strings"

	"github.com/shohag/feedbackhooks/internal/storage"
)

type StatsHandler struct {
	store storage.Storage
}

func NewStatsHandler(store storage.Storage) *StatsHandler {
	return &StatsHandler{store: store}
}

func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "feedbackhooks",
	})
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		writeServiceError(w, invalidField("project_id", "is required"))
		return
	}

	stats, err := h.store.GetStats(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, internalError(err, "failed to get stats"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
