package models

import (
	"net/url"
	"time"
)

type WebhookStatus string

const (
	WebhookActive   WebhookStatus = "active"
	WebhookInactive WebhookStatus = "inactive"
)

// Webhook is a project-owned delivery destination. Secret is the HMAC key and
// is never serialized; handlers reveal it through an explicit response.
type Webhook struct {
	ID                 string         `json:"id"`
	ProjectID          string         `json:"project_id"`
	Name               string         `json:"name"`
	URL                string         `json:"url"`
	Secret             string         `json:"-"`
	Events             []string       `json:"events"`
	Status             WebhookStatus  `json:"status"`
	RetryCount         int            `json:"retry_count"`
	LastTriggeredAt    *time.Time     `json:"last_triggered_at,omitempty"`
	LastDeliveryStatus DeliveryStatus `json:"last_delivery_status,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (w *Webhook) IsActive() bool {
	return w.Status == WebhookActive
}

func (w *Webhook) Subscribed(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

func ValidWebhookStatus(s WebhookStatus) bool {
	return s == WebhookActive || s == WebhookInactive
}

// ValidDestinationURL reports whether raw is an absolute http or https URL a
// delivery can be posted to.
func ValidDestinationURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
