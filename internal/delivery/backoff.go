package delivery

import (
	"fmt"
	"time"

	"github.com/shohag/feedbackhooks/internal/models"
)

const (
	DefaultBaseDelay = 5 * time.Second
	DefaultMaxDelay  = time.Hour
)

// Backoff is capped exponential growth: Base * 2^(attempt-1), never above Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBaseDelay, Max: DefaultMaxDelay}
}

// Delay returns the wait before the next try after the given 1-indexed
// attempt failed.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maximum := b.Max
	if maximum <= 0 {
		maximum = DefaultMaxDelay
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// Policy bundles what decides the fate of a failed attempt.
type Policy struct {
	Backoff     Backoff
	MaxAttempts int
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return models.DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// nextState maps the outcome of attempt number `attempt` onto the delivery
// log. It is the only place status transitions are decided.
func nextState(attempt, maxAttempts int, result *SendResult, now time.Time, backoff Backoff) models.DeliveryUpdate {
	u := models.DeliveryUpdate{
		HTTPStatusCode: result.StatusCode,
		ResponseBody:   result.ResponseBody,
		AttemptCount:   attempt,
	}

	if result.Error == "" && IsSuccess(result.StatusCode) {
		delivered := now
		u.Status = models.DeliveryDelivered
		u.DeliveredAt = &delivered
		return u
	}

	u.ErrorMessage = result.Error
	if u.ErrorMessage == "" {
		u.ErrorMessage = fmt.Sprintf("HTTP %d", result.StatusCode)
	}

	if attempt >= maxAttempts {
		u.Status = models.DeliveryFailed
		return u
	}

	next := now.Add(backoff.Delay(attempt))
	u.Status = models.DeliveryPending
	u.NextRetryAt = &next
	return u
}
