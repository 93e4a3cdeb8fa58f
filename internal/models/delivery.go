package models

import "time"

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

const DefaultMaxAttempts = 5

// DeliveryLogEntry records one delivery chain: the first attempt and every
// retry share a row. Payload and Signature are written once and never change.
type DeliveryLogEntry struct {
	ID             string         `json:"id"`
	WebhookID      string         `json:"webhook_id"`
	EventType      string         `json:"event_type"`
	Payload        string         `json:"payload"`
	Signature      string         `json:"signature"`
	Status         DeliveryStatus `json:"status"`
	HTTPStatusCode int            `json:"http_status_code,omitempty"`
	ResponseBody   string         `json:"response_body,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	AttemptCount   int            `json:"attempt_count"`
	MaxAttempts    int            `json:"max_attempts"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DeliveryUpdate is the mutable part of a DeliveryLogEntry. It is applied as
// one single-row update.
type DeliveryUpdate struct {
	Status         DeliveryStatus
	HTTPStatusCode int
	ResponseBody   string
	ErrorMessage   string
	AttemptCount   int
	NextRetryAt    *time.Time
	DeliveredAt    *time.Time
}

// Apply copies u onto the entry, mirroring what the store persists.
func (d *DeliveryLogEntry) Apply(u DeliveryUpdate) {
	d.Status = u.Status
	d.HTTPStatusCode = u.HTTPStatusCode
	d.ResponseBody = u.ResponseBody
	d.ErrorMessage = u.ErrorMessage
	d.AttemptCount = u.AttemptCount
	d.NextRetryAt = u.NextRetryAt
	d.DeliveredAt = u.DeliveredAt
}

func (d *DeliveryLogEntry) IsTerminal() bool {
	return d.Status == DeliveryDelivered || d.Status == DeliveryFailed
}
