package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shohag/feedbackhooks/internal/storage"
)

type DeliveryHandler struct {
	store storage.Storage
}

func NewDeliveryHandler(store storage.Storage) *DeliveryHandler {
	return &DeliveryHandler{store: store}
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.store.GetDeliveryLog(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, internalError(err, "failed to get delivery"))
		return
	}
	if d == nil {
		writeServiceError(w, notFound("delivery not found"))
		return
	}
	writeJSON(w, http.StatusOK, d)
}
