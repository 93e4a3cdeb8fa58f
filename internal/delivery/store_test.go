package delivery

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shohag/feedbackhooks/internal/models"
)

// memStore is an in-memory Store for exercising the delivery core without SQL.
type memStore struct {
	mu       sync.Mutex
	webhooks map[string]models.Webhook
	logs     map[string]*models.DeliveryLogEntry
	order    []string

	findErr error
	// rejectUpdate, when set, fails UpdateDeliveryLog calls it returns an
	// error for.
	rejectUpdate func(models.DeliveryUpdate) error
}

func newMemStore(webhooks ...models.Webhook) *memStore {
	s := &memStore{
		webhooks: make(map[string]models.Webhook),
		logs:     make(map[string]*models.DeliveryLogEntry),
	}
	for _, wh := range webhooks {
		s.webhooks[wh.ID] = wh
	}
	return s
}

func (s *memStore) FindActiveByProjectAndEvent(_ context.Context, projectID, event string) ([]models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []models.Webhook
	for _, wh := range s.webhooks {
		if wh.ProjectID == projectID && wh.IsActive() && wh.Subscribed(event) {
			out = append(out, wh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) FindWebhooksByIDs(_ context.Context, ids []string) ([]models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Webhook
	for _, id := range ids {
		if wh, ok := s.webhooks[id]; ok {
			out = append(out, wh)
		}
	}
	return out, nil
}

func (s *memStore) RecordWebhookDelivery(_ context.Context, id string, status models.DeliveryStatus, at time.Time, retried bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wh, ok := s.webhooks[id]
	if !ok {
		return errors.New("webhook not found")
	}
	wh.LastTriggeredAt = &at
	wh.LastDeliveryStatus = status
	if retried {
		wh.RetryCount++
	}
	s.webhooks[id] = wh
	return nil
}

func (s *memStore) CreateDeliveryLog(_ context.Context, d *models.DeliveryLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.logs[d.ID] = &cp
	s.order = append(s.order, d.ID)
	return nil
}

func (s *memStore) UpdateDeliveryLog(_ context.Context, id string, u models.DeliveryUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.logs[id]
	if !ok {
		return errors.New("delivery not found")
	}
	if s.rejectUpdate != nil {
		if err := s.rejectUpdate(u); err != nil {
			return err
		}
	}
	d.Apply(u)
	return nil
}

func (s *memStore) FindDueForRetry(_ context.Context, limit int, now time.Time) ([]models.DeliveryLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DeliveryLogEntry
	for _, d := range s.logs {
		if d.Status == models.DeliveryPending && d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(*out[j].NextRetryAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) entries() []models.DeliveryLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DeliveryLogEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.logs[id])
	}
	return out
}

func (s *memStore) webhook(id string) models.Webhook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.webhooks[id]
}

func (s *memStore) setWebhook(wh models.Webhook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks[wh.ID] = wh
}

func (s *memStore) setRejectUpdate(fn func(models.DeliveryUpdate) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectUpdate = fn
}

func (s *memStore) deleteWebhook(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.webhooks, id)
}

var _ Store = (*memStore)(nil)
