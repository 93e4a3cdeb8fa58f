package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shohag/feedbackhooks/internal/delivery"
	"github.com/shohag/feedbackhooks/internal/models"
)

const maxEventSize = 256 * 1024

type Enqueuer interface {
	Enqueue(ev models.Event) error
}

type DispatchHandler struct {
	dispatcher delivery.EventDispatcher
	sweeper    delivery.Sweeper
	queue      Enqueuer
}

func NewDispatchHandler(dispatcher delivery.EventDispatcher, sweeper delivery.Sweeper, queue Enqueuer) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher, sweeper: sweeper, queue: queue}
}

type dispatchResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Webhooks     int    `json:"webhooks"`
	SuccessCount int    `json:"success_count"`
	FailureCount int    `json:"failure_count"`
}

type sweepResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Processed    int    `json:"processed"`
	SuccessCount int    `json:"success_count"`
	FailureCount int    `json:"failure_count"`
	Skipped      bool   `json:"skipped,omitempty"`
}

func decodeEvent(w http.ResponseWriter, r *http.Request) (models.Event, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEventSize)
	var ev models.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		return models.Event{}, badRequest("invalid request body")
	}
	return ev, nil
}

// Dispatch delivers an event synchronously and reports per-webhook counts.
// Delivery continues even if the caller goes away mid-request.
func (h *DispatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	ev, err := decodeEvent(w, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := h.dispatcher.Dispatch(context.WithoutCancel(r.Context()), ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dispatchResponse{
		Success:      true,
		Message:      result.Message(),
		Webhooks:     result.Webhooks,
		SuccessCount: result.SuccessCount,
		FailureCount: result.FailureCount,
	})
}

// Enqueue accepts an event for background delivery.
func (h *DispatchHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	ev, err := decodeEvent(w, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.queue.Enqueue(ev); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"message": "Event accepted for delivery",
	})
}

func (h *DispatchHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.Sweep(context.WithoutCancel(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sweepResponse{
		Success:      true,
		Message:      result.Message(),
		Processed:    result.Processed,
		SuccessCount: result.SuccessCount,
		FailureCount: result.FailureCount,
		Skipped:      result.Skipped,
	})
}
