package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shohag/feedbackhooks/internal/models"
)

func newTestStore(t *testing.T) *SQLStorage {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func seedWebhook(t *testing.T, store *SQLStorage, projectID string, status models.WebhookStatus, events ...string) *models.Webhook {
	t.Helper()
	now := time.Now().UTC()
	wh := &models.Webhook{
		ID:        models.NewID("wh"),
		ProjectID: projectID,
		Name:      "hook",
		URL:       "https://example.com/hook",
		Secret:    "s3cr3t",
		Events:    events,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateWebhook(context.Background(), wh); err != nil {
		t.Fatalf("create webhook: %v", err)
	}
	return wh
}

func TestRebindPostgres(t *testing.T) {
	got := DialectPostgres.Rebind(`SELECT * FROM t WHERE a = ? AND b IN (?, ?)`)
	want := `SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if q := DialectSQLite.Rebind("a = ?"); q != "a = ?" {
		t.Fatalf("expected sqlite query untouched, got %q", q)
	}
}

func TestFindActiveByProjectAndEvent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	match := seedWebhook(t, store, "p1", models.WebhookActive, models.EventFeedbackCreated)
	seedWebhook(t, store, "p1", models.WebhookInactive, models.EventFeedbackCreated)
	seedWebhook(t, store, "p1", models.WebhookActive, models.EventFeedbackUpdated)
	seedWebhook(t, store, "p2", models.WebhookActive, models.EventFeedbackCreated)

	found, err := store.FindActiveByProjectAndEvent(ctx, "p1", models.EventFeedbackCreated)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 1 || found[0].ID != match.ID {
		t.Fatalf("expected only %s, got %+v", match.ID, found)
	}
	if found[0].Secret != "s3cr3t" {
		t.Fatalf("expected secret to be loaded for signing")
	}
}

func TestFindWebhooksByIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := seedWebhook(t, store, "p1", models.WebhookActive, models.EventFeedbackCreated)
	b := seedWebhook(t, store, "p1", models.WebhookInactive, models.EventFeedbackCreated)

	found, err := store.FindWebhooksByIDs(ctx, []string{a.ID, b.ID, "wh_missing"})
	if err != nil {
		t.Fatalf("find by ids: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 webhooks, got %d", len(found))
	}
	none, err := store.FindWebhooksByIDs(ctx, nil)
	if err != nil || none != nil {
		t.Fatalf("expected nil result for empty ids, got %v, %v", none, err)
	}
}

func TestDeliveryLogLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	wh := seedWebhook(t, store, "p1", models.WebhookActive, models.EventFeedbackCreated)

	entry := &models.DeliveryLogEntry{
		ID:           models.NewID("dlv"),
		WebhookID:    wh.ID,
		EventType:    models.EventFeedbackCreated,
		Payload:      `{"event":"feedback.created"}`,
		Signature:    "abc",
		Status:       models.DeliveryFailed,
		AttemptCount: 9,
	}
	if err := store.CreateDeliveryLog(ctx, entry); err != nil {
		t.Fatalf("create log: %v", err)
	}

	got, err := store.GetDeliveryLog(ctx, entry.ID)
	if err != nil || got == nil {
		t.Fatalf("get log: %v", err)
	}
	if got.Status != models.DeliveryPending || got.AttemptCount != 1 || got.MaxAttempts != models.DefaultMaxAttempts {
		t.Fatalf("expected pending/1/%d on create, got %s/%d/%d", models.DefaultMaxAttempts, got.Status, got.AttemptCount, got.MaxAttempts)
	}

	retryAt := time.Now().UTC().Add(5 * time.Second)
	err = store.UpdateDeliveryLog(ctx, entry.ID, models.DeliveryUpdate{
		Status:         models.DeliveryPending,
		HTTPStatusCode: 500,
		ErrorMessage:   "HTTP 500",
		AttemptCount:   1,
		NextRetryAt:    &retryAt,
	})
	if err != nil {
		t.Fatalf("update log: %v", err)
	}

	got, _ = store.GetDeliveryLog(ctx, entry.ID)
	if got.HTTPStatusCode != 500 || got.NextRetryAt == nil {
		t.Fatalf("expected retry scheduled with status 500, got %+v", got)
	}
	if got.Payload != entry.Payload || got.Signature != entry.Signature {
		t.Fatalf("expected payload and signature to be unchanged")
	}

	if err := store.UpdateDeliveryLog(ctx, "dlv_missing", models.DeliveryUpdate{}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	missing, err := store.GetDeliveryLog(ctx, "dlv_missing")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing log, got %v, %v", missing, err)
	}
}

func TestFindDueForRetryOrdersAndBounds(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	wh := seedWebhook(t, store, "p1", models.WebhookActive, models.EventFeedbackCreated)
	now := time.Now().UTC()

	schedule := func(offset time.Duration, status models.DeliveryStatus) string {
		entry := &models.DeliveryLogEntry{
			ID:        models.NewID("dlv"),
			WebhookID: wh.ID,
			EventType: models.EventFeedbackCreated,
			Payload:   "{}",
			Signature: "sig",
		}
		if err := store.CreateDeliveryLog(ctx, entry); err != nil {
			t.Fatalf("create: %v", err)
		}
		at := now.Add(offset)
		u := models.DeliveryUpdate{Status: status, AttemptCount: 1, NextRetryAt: &at}
		if status != models.DeliveryPending {
			u.NextRetryAt = nil
		}
		if err := store.UpdateDeliveryLog(ctx, entry.ID, u); err != nil {
			t.Fatalf("update: %v", err)
		}
		return entry.ID
	}

	newer := schedule(-time.Second, models.DeliveryPending)
	older := schedule(-time.Minute, models.DeliveryPending)
	schedule(time.Minute, models.DeliveryPending)
	schedule(-time.Hour, models.DeliveryDelivered)
	schedule(-time.Hour, models.DeliveryFailed)

	due, err := store.FindDueForRetry(ctx, 10, now)
	if err != nil {
		t.Fatalf("find due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due entries, got %d", len(due))
	}
	if due[0].ID != older || due[1].ID != newer {
		t.Fatalf("expected oldest-due first, got %s then %s", due[0].ID, due[1].ID)
	}

	bounded, err := store.FindDueForRetry(ctx, 1, now)
	if err != nil || len(bounded) != 1 || bounded[0].ID != older {
		t.Fatalf("expected limit to keep only the oldest entry, got %v (%v)", bounded, err)
	}
}

func TestRecordWebhookDeliveryAndStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	wh := seedWebhook(t, store, "p1", models.WebhookActive, models.EventFeedbackCreated)

	if err := store.RecordWebhookDelivery(ctx, wh.ID, models.DeliveryDelivered, time.Now(), true); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, _ := store.GetWebhook(ctx, wh.ID)
	if got.RetryCount != 1 || got.LastDeliveryStatus != models.DeliveryDelivered || got.LastTriggeredAt == nil {
		t.Fatalf("expected trigger bookkeeping, got %+v", got)
	}

	entry := &models.DeliveryLogEntry{ID: models.NewID("dlv"), WebhookID: wh.ID, EventType: models.EventFeedbackCreated, Payload: "{}", Signature: "sig"}
	if err := store.CreateDeliveryLog(ctx, entry); err != nil {
		t.Fatalf("create: %v", err)
	}

	stats, err := store.GetStats(ctx, "p1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalWebhooks != 1 || stats.ActiveWebhooks != 1 || stats.TotalDeliveries != 1 || stats.PendingCount != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestWebhookMutations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	wh := seedWebhook(t, store, "p1", models.WebhookActive, models.EventFeedbackCreated)

	if err := store.SetWebhookStatus(ctx, wh.ID, models.WebhookInactive); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := store.RotateWebhookSecret(ctx, wh.ID, "rotated"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	got, _ := store.GetWebhook(ctx, wh.ID)
	if got.Status != models.WebhookInactive || got.Secret != "rotated" {
		t.Fatalf("expected inactive webhook with rotated secret, got %s/%s", got.Status, got.Secret)
	}

	if err := store.DeleteWebhook(ctx, wh.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteWebhook(ctx, wh.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
