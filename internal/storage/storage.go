package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shohag/feedbackhooks/internal/models"
)

var ErrNotFound = errors.New("storage: record not found")

// DefaultRetryBatch bounds a single FindDueForRetry call.
const DefaultRetryBatch = 100

type Storage interface {
	// Webhooks
	CreateWebhook(ctx context.Context, wh *models.Webhook) error
	GetWebhook(ctx context.Context, id string) (*models.Webhook, error)
	ListWebhooks(ctx context.Context, projectID string) ([]models.Webhook, error)
	UpdateWebhook(ctx context.Context, wh *models.Webhook) error
	DeleteWebhook(ctx context.Context, id string) error
	SetWebhookStatus(ctx context.Context, id string, status models.WebhookStatus) error
	RotateWebhookSecret(ctx context.Context, id, secret string) error
	FindActiveByProjectAndEvent(ctx context.Context, projectID, event string) ([]models.Webhook, error)
	FindWebhooksByIDs(ctx context.Context, ids []string) ([]models.Webhook, error)
	RecordWebhookDelivery(ctx context.Context, id string, status models.DeliveryStatus, at time.Time, retried bool) error

	// Delivery log
	CreateDeliveryLog(ctx context.Context, d *models.DeliveryLogEntry) error
	UpdateDeliveryLog(ctx context.Context, id string, u models.DeliveryUpdate) error
	GetDeliveryLog(ctx context.Context, id string) (*models.DeliveryLogEntry, error)
	ListDeliveryLogs(ctx context.Context, webhookID string, limit, offset int) ([]models.DeliveryLogEntry, error)
	FindDueForRetry(ctx context.Context, limit int, now time.Time) ([]models.DeliveryLogEntry, error)

	// Stats
	GetStats(ctx context.Context, projectID string) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

type Stats struct {
	TotalWebhooks   int64   `json:"total_webhooks"`
	ActiveWebhooks  int64   `json:"active_webhooks"`
	TotalDeliveries int64   `json:"total_deliveries"`
	DeliveredCount  int64   `json:"delivered_count"`
	FailedCount     int64   `json:"failed_count"`
	PendingCount    int64   `json:"pending_count"`
	SuccessRate     float64 `json:"success_rate"`
}
