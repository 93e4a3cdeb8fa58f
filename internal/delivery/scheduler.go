package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/shohag/feedbackhooks/internal/models"
)

const (
	sweepLockKey = "feedbackhooks:sweep"

	MsgWebhookNotFound = "Webhook configuration not found"
	MsgWebhookInactive = "Webhook is inactive"
)

type SweepResult struct {
	Processed    int  `json:"processed"`
	SuccessCount int  `json:"success_count"`
	FailureCount int  `json:"failure_count"`
	Skipped      bool `json:"skipped,omitempty"`
}

func (r SweepResult) Message() string {
	switch {
	case r.Skipped:
		return "Retry sweep already in progress"
	case r.Processed == 0:
		return "No deliveries due for retry"
	default:
		return fmt.Sprintf("Processed %d pending deliveries", r.Processed)
	}
}

// Scheduler re-sends delivery log entries whose retry time has come. It never
// re-formats or re-signs: the stored payload and signature go out as-is.
type Scheduler struct {
	store     Store
	sender    *Sender
	policy    Policy
	locker    Locker
	lockTTL   time.Duration
	batchSize int
	fanOut    int
	log       zerolog.Logger

	Now func() time.Time
}

type SchedulerOptions struct {
	BatchSize int
	FanOut    int
	LockTTL   time.Duration
}

func NewScheduler(store Store, sender *Sender, policy Policy, locker Locker, opts SchedulerOptions, log zerolog.Logger) *Scheduler {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FanOut <= 0 {
		opts.FanOut = defaultFanOut
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	return &Scheduler{
		store:     store,
		sender:    sender,
		policy:    policy,
		locker:    locker,
		lockTTL:   opts.LockTTL,
		batchSize: opts.BatchSize,
		fanOut:    opts.FanOut,
		log:       log,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

type sweepOutcome int

const (
	outcomeDelivered sweepOutcome = iota
	outcomeRetrying
	outcomeFailed
	outcomeError
)

// Sweep processes one bounded batch of due deliveries. A sweep that finds
// another one holding the lock returns immediately with Skipped set.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	release, acquired, err := s.locker.Acquire(ctx, sweepLockKey, s.lockTTL)
	if err != nil {
		return SweepResult{}, storeError(err, "failed to acquire sweep lock")
	}
	if !acquired {
		s.log.Debug().Msg("retry sweep skipped, another sweep holds the lock")
		return SweepResult{Skipped: true}, nil
	}
	defer release()

	due, err := s.store.FindDueForRetry(ctx, s.batchSize, s.Now())
	if err != nil {
		return SweepResult{}, storeError(err, "failed to load due deliveries")
	}
	result := SweepResult{Processed: len(due)}
	if len(due) == 0 {
		return result, nil
	}

	webhooks, err := s.loadWebhooks(ctx, due)
	if err != nil {
		return SweepResult{}, storeError(err, "failed to load webhooks")
	}

	p := pool.NewWithResults[sweepOutcome]().WithMaxGoroutines(s.fanOut)
	for _, entry := range due {
		entry := entry
		p.Go(func() sweepOutcome {
			return s.retry(ctx, entry, webhooks[entry.WebhookID])
		})
	}

	for _, outcome := range p.Wait() {
		if outcome == outcomeDelivered {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
	}

	s.log.Info().
		Int("processed", result.Processed).
		Int("success", result.SuccessCount).
		Int("failure", result.FailureCount).
		Msg("retry sweep completed")

	return result, nil
}

func (s *Scheduler) loadWebhooks(ctx context.Context, due []models.DeliveryLogEntry) (map[string]*models.Webhook, error) {
	seen := make(map[string]bool, len(due))
	ids := make([]string, 0, len(due))
	for _, d := range due {
		if !seen[d.WebhookID] {
			seen[d.WebhookID] = true
			ids = append(ids, d.WebhookID)
		}
	}

	found, err := s.store.FindWebhooksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Webhook, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}
	return byID, nil
}

func (s *Scheduler) retry(ctx context.Context, entry models.DeliveryLogEntry, wh *models.Webhook) (outcome sweepOutcome) {
	log := s.log.With().
		Str("delivery_id", entry.ID).
		Str("webhook_id", entry.WebhookID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("delivery retry panicked")
			outcome = outcomeError
		}
	}()

	switch {
	case wh == nil:
		return s.terminate(ctx, log, entry, MsgWebhookNotFound)
	case !wh.IsActive():
		return s.terminate(ctx, log, entry, MsgWebhookInactive)
	}

	result := s.sender.Send(ctx, Request{
		URL:       wh.URL,
		Event:     entry.EventType,
		WebhookID: wh.ID,
		Signature: entry.Signature,
		Body:      []byte(entry.Payload),
	})

	maxAttempts := entry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.policy.maxAttempts()
	}
	now := s.Now()
	update := nextState(entry.AttemptCount+1, maxAttempts, result, now, s.policy.Backoff)
	if err := persistUpdate(ctx, s.store, log, entry.ID, update); err != nil {
		log.Error().Err(err).Msg("failed to update delivery log")
		return outcomeError
	}
	if err := s.store.RecordWebhookDelivery(ctx, wh.ID, update.Status, now, true); err != nil {
		log.Warn().Err(err).Msg("failed to record webhook trigger")
	}

	logOutcome(log, update, result, "")
	switch update.Status {
	case models.DeliveryDelivered:
		return outcomeDelivered
	case models.DeliveryFailed:
		return outcomeFailed
	default:
		return outcomeRetrying
	}
}

// terminate fails an entry whose webhook can no longer receive it. No attempt
// is made, so the attempt count is left as it was.
func (s *Scheduler) terminate(ctx context.Context, log zerolog.Logger, entry models.DeliveryLogEntry, reason string) sweepOutcome {
	update := models.DeliveryUpdate{
		Status:         models.DeliveryFailed,
		HTTPStatusCode: entry.HTTPStatusCode,
		ResponseBody:   entry.ResponseBody,
		ErrorMessage:   reason,
		AttemptCount:   entry.AttemptCount,
	}
	if err := s.store.UpdateDeliveryLog(ctx, entry.ID, update); err != nil {
		log.Error().Err(err).Msg("failed to fail delivery log")
		return outcomeError
	}
	log.Warn().Str("reason", reason).Msg("delivery terminated")
	return outcomeFailed
}
