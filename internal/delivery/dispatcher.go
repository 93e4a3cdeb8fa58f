package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/shohag/feedbackhooks/internal/formatter"
	"github.com/shohag/feedbackhooks/internal/models"
	"github.com/shohag/feedbackhooks/internal/signing"
)

const defaultFanOut = 16

type DispatchResult struct {
	Webhooks     int `json:"webhooks"`
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// Dispatcher makes the first delivery attempt of an event to every subscribed
// webhook of the project.
type Dispatcher struct {
	store     Store
	sender    *Sender
	formatter *formatter.Formatter
	policy    Policy
	fanOut    int
	log       zerolog.Logger

	Now func() time.Time
}

func NewDispatcher(store Store, sender *Sender, f *formatter.Formatter, policy Policy, fanOut int, log zerolog.Logger) *Dispatcher {
	if fanOut <= 0 {
		fanOut = defaultFanOut
	}
	return &Dispatcher{
		store:     store,
		sender:    sender,
		formatter: f,
		policy:    policy,
		fanOut:    fanOut,
		log:       log,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch validates the event, then delivers it to each webhook
// independently. Destination failures are recorded, not returned; an error
// means the event was rejected or the webhooks could not be loaded.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.Event) (DispatchResult, error) {
	if err := ev.Validate(); err != nil {
		return DispatchResult{}, err
	}

	webhooks, err := d.store.FindActiveByProjectAndEvent(ctx, ev.ProjectID, ev.Event)
	if err != nil {
		return DispatchResult{}, storeError(err, "failed to load webhooks")
	}

	result := DispatchResult{Webhooks: len(webhooks)}
	if len(webhooks) == 0 {
		return result, nil
	}

	p := pool.NewWithResults[bool]().WithMaxGoroutines(d.fanOut)
	for _, wh := range webhooks {
		wh := wh
		p.Go(func() bool {
			return d.deliver(ctx, ev, wh)
		})
	}

	for _, ok := range p.Wait() {
		if ok {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
	}

	d.log.Info().
		Str("event", ev.Event).
		Str("project_id", ev.ProjectID).
		Int("webhooks", result.Webhooks).
		Int("success", result.SuccessCount).
		Int("failure", result.FailureCount).
		Msg("event dispatched")

	return result, nil
}

// deliver runs one webhook's first attempt. Every failure stays inside this
// call so siblings are unaffected.
func (d *Dispatcher) deliver(ctx context.Context, ev models.Event, wh models.Webhook) (delivered bool) {
	log := d.log.With().Str("webhook_id", wh.ID).Str("event", ev.Event).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("webhook delivery panicked")
			delivered = false
		}
	}()

	rendered, err := d.formatter.Format(wh.URL, ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to format payload")
		return false
	}

	entry := &models.DeliveryLogEntry{
		ID:           models.NewID("dlv"),
		WebhookID:    wh.ID,
		EventType:    ev.Event,
		Payload:      string(rendered.Payload),
		Signature:    signing.Sign(wh.Secret, rendered.Body),
		Status:       models.DeliveryPending,
		AttemptCount: 1,
		MaxAttempts:  d.policy.maxAttempts(),
		CreatedAt:    d.Now(),
	}
	// Due once the first attempt has certainly finished, so the sweep still
	// picks the row up when the outcome below cannot be written.
	due := entry.CreatedAt.Add(d.sender.client.Timeout + d.policy.Backoff.Delay(1))
	entry.NextRetryAt = &due
	if err := d.store.CreateDeliveryLog(ctx, entry); err != nil {
		log.Error().Err(err).Msg("failed to create delivery log")
		return false
	}
	log = log.With().Str("delivery_id", entry.ID).Logger()

	result := d.sender.Send(ctx, Request{
		URL:       wh.URL,
		Event:     ev.Event,
		WebhookID: wh.ID,
		Signature: entry.Signature,
		Body:      rendered.Body,
	})

	now := d.Now()
	update := nextState(entry.AttemptCount, entry.MaxAttempts, result, now, d.policy.Backoff)
	if err := persistUpdate(ctx, d.store, log, entry.ID, update); err != nil {
		log.Error().Err(err).Msg("failed to update delivery log")
		return false
	}
	if err := d.store.RecordWebhookDelivery(ctx, wh.ID, update.Status, now, false); err != nil {
		log.Warn().Err(err).Msg("failed to record webhook trigger")
	}

	logOutcome(log, update, result, string(rendered.Destination))
	return update.Status == models.DeliveryDelivered
}

// persistUpdate writes an attempt outcome. If the store rejects it, the write
// is repeated without the response body: status and attempt count must
// advance or the row would be resent forever.
func persistUpdate(ctx context.Context, store Store, log zerolog.Logger, id string, u models.DeliveryUpdate) error {
	err := store.UpdateDeliveryLog(ctx, id, u)
	if err == nil || u.ResponseBody == "" {
		return err
	}
	log.Warn().Err(err).Msg("delivery log update rejected, retrying without response body")
	u.ResponseBody = ""
	return store.UpdateDeliveryLog(ctx, id, u)
}

func logOutcome(log zerolog.Logger, u models.DeliveryUpdate, result *SendResult, destination string) {
	switch u.Status {
	case models.DeliveryDelivered:
		log.Info().
			Int("status_code", result.StatusCode).
			Int64("latency_ms", result.LatencyMs).
			Int("attempt", u.AttemptCount).
			Str("destination", destination).
			Msg("delivery succeeded")
	case models.DeliveryFailed:
		log.Warn().
			Int("attempts", u.AttemptCount).
			Str("error", u.ErrorMessage).
			Msg("delivery permanently failed")
	default:
		ev := log.Info().
			Int("attempt", u.AttemptCount).
			Str("error", u.ErrorMessage)
		if u.NextRetryAt != nil {
			ev = ev.Time("next_retry", *u.NextRetryAt)
		}
		ev.Msg("delivery scheduled for retry")
	}
}

func (r DispatchResult) Message() string {
	if r.Webhooks == 0 {
		return "No webhooks configured for this event"
	}
	return fmt.Sprintf("Dispatched to %d webhook(s)", r.Webhooks)
}
