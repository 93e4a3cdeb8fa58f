package delivery

import (
	"context"
	"time"

	"github.com/shohag/feedbackhooks/internal/models"
)

// Store is the slice of storage.Storage the delivery core depends on.
type Store interface {
	FindActiveByProjectAndEvent(ctx context.Context, projectID, event string) ([]models.Webhook, error)
	FindWebhooksByIDs(ctx context.Context, ids []string) ([]models.Webhook, error)
	RecordWebhookDelivery(ctx context.Context, id string, status models.DeliveryStatus, at time.Time, retried bool) error

	CreateDeliveryLog(ctx context.Context, d *models.DeliveryLogEntry) error
	UpdateDeliveryLog(ctx context.Context, id string, u models.DeliveryUpdate) error
	FindDueForRetry(ctx context.Context, limit int, now time.Time) ([]models.DeliveryLogEntry, error)
}
