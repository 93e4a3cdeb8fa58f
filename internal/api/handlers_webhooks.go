package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shohag/feedbackhooks/internal/models"
	"github.com/shohag/feedbackhooks/internal/storage"
)

const maxWebhookBodySize = 64 * 1024

type WebhookHandler struct {
	store storage.Storage
}

func NewWebhookHandler(store storage.Storage) *WebhookHandler {
	return &WebhookHandler{store: store}
}

// webhookWithSecret is returned only from create and rotate-secret.
type webhookWithSecret struct {
	*models.Webhook
	Secret string `json:"secret"`
}

type createWebhookRequest struct {
	ProjectID string   `json:"project_id"`
	Name      string   `json:"name"`
	URL       string   `json:"url"`
	Events    []string `json:"events"`
}

type updateWebhookRequest struct {
	Name   *string               `json:"name"`
	URL    *string               `json:"url"`
	Events []string              `json:"events"`
	Status *models.WebhookStatus `json:"status"`
}

func validateURL(raw string) error {
	if !models.ValidDestinationURL(raw) {
		return invalidField("url", "must be a valid HTTP or HTTPS URL")
	}
	return nil
}

func validateEvents(events []string) error {
	if len(events) == 0 {
		return invalidField("events", "must list at least one event")
	}
	for _, e := range events {
		if !models.ValidEvent(e) {
			return invalidField("events", "unsupported event "+strconv.Quote(e))
		}
	}
	return nil
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeServiceError(w, badRequest("invalid request body"))
		return
	}

	req.ProjectID = strings.TrimSpace(req.ProjectID)
	req.Name = strings.TrimSpace(req.Name)
	switch {
	case req.ProjectID == "":
		writeServiceError(w, invalidField("project_id", "is required"))
		return
	case req.Name == "":
		writeServiceError(w, invalidField("name", "is required"))
		return
	}
	if err := validateURL(req.URL); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := validateEvents(req.Events); err != nil {
		writeServiceError(w, err)
		return
	}

	now := time.Now().UTC()
	wh := &models.Webhook{
		ID:        models.NewID("wh"),
		ProjectID: req.ProjectID,
		Name:      req.Name,
		URL:       req.URL,
		Secret:    models.NewSecret(),
		Events:    req.Events,
		Status:    models.WebhookActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateWebhook(r.Context(), wh); err != nil {
		writeServiceError(w, internalError(err, "failed to create webhook"))
		return
	}

	writeJSON(w, http.StatusCreated, webhookWithSecret{Webhook: wh, Secret: wh.Secret})
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		writeServiceError(w, invalidField("project_id", "is required"))
		return
	}

	webhooks, err := h.store.ListWebhooks(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, internalError(err, "failed to list webhooks"))
		return
	}
	if webhooks == nil {
		webhooks = []models.Webhook{}
	}
	writeJSON(w, http.StatusOK, webhooks)
}

// load fetches the {id} webhook, writing the error response itself when it
// cannot.
func (h *WebhookHandler) load(w http.ResponseWriter, r *http.Request) (*models.Webhook, bool) {
	wh, err := h.store.GetWebhook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, internalError(err, "failed to get webhook"))
		return nil, false
	}
	if wh == nil {
		writeServiceError(w, notFound("webhook not found"))
		return nil, false
	}
	return wh, true
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	wh, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	wh, ok := h.load(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	var req updateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeServiceError(w, badRequest("invalid request body"))
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeServiceError(w, invalidField("name", "must not be empty"))
			return
		}
		wh.Name = name
	}
	if req.URL != nil {
		if err := validateURL(*req.URL); err != nil {
			writeServiceError(w, err)
			return
		}
		wh.URL = *req.URL
	}
	if req.Events != nil {
		if err := validateEvents(req.Events); err != nil {
			writeServiceError(w, err)
			return
		}
		wh.Events = req.Events
	}
	if req.Status != nil {
		if !models.ValidWebhookStatus(*req.Status) {
			writeServiceError(w, invalidField("status", "must be active or inactive"))
			return
		}
		wh.Status = *req.Status
	}

	if err := h.store.UpdateWebhook(r.Context(), wh); err != nil {
		writeServiceError(w, storeFailure(err, "failed to update webhook"))
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteWebhook(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, storeFailure(err, "failed to delete webhook"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WebhookHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	wh, ok := h.load(w, r)
	if !ok {
		return
	}

	next := models.WebhookActive
	if wh.IsActive() {
		next = models.WebhookInactive
	}
	if err := h.store.SetWebhookStatus(r.Context(), wh.ID, next); err != nil {
		writeServiceError(w, storeFailure(err, "failed to toggle webhook"))
		return
	}

	wh.Status = next
	writeJSON(w, http.StatusOK, wh)
}

// RotateSecret issues a new signing secret. Deliveries already logged keep
// the signature computed with the old one.
func (h *WebhookHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	wh, ok := h.load(w, r)
	if !ok {
		return
	}

	secret := models.NewSecret()
	if err := h.store.RotateWebhookSecret(r.Context(), wh.ID, secret); err != nil {
		writeServiceError(w, storeFailure(err, "failed to rotate secret"))
		return
	}

	wh.Secret = secret
	writeJSON(w, http.StatusOK, webhookWithSecret{Webhook: wh, Secret: secret})
}

func (h *WebhookHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	wh, ok := h.load(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := h.store.ListDeliveryLogs(r.Context(), wh.ID, limit, offset)
	if err != nil {
		writeServiceError(w, internalError(err, "failed to list deliveries"))
		return
	}
	if logs == nil {
		logs = []models.DeliveryLogEntry{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func storeFailure(err error, message string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return notFound("webhook not found")
	}
	return internalError(err, message)
}
