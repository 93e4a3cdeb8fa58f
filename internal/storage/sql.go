package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/shohag/feedbackhooks/internal/models"
)

type SQLStorage struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLite(path string) (*SQLStorage, error) {
	db, err := sql.Open(DialectSQLite.DriverName(), path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLStorage{db: db, dialect: DialectSQLite}, nil
}

func NewPostgres(ctx context.Context, dsn string, maxConns int) (*SQLStorage, error) {
	db, err := sql.Open(DialectPostgres.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &SQLStorage{db: db, dialect: DialectPostgres}, nil
}

func (s *SQLStorage) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStorage) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *SQLStorage) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *SQLStorage) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *SQLStorage) Migrate(ctx context.Context) error {
	ts := s.dialect.timestampType()
	queries := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS webhooks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			secret TEXT NOT NULL,
			events TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'active',
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_triggered_at %[1]s,
			last_delivery_status TEXT NOT NULL DEFAULT '',
			created_at %[1]s NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at %[1]s NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS webhook_delivery_logs (
			id TEXT PRIMARY KEY,
			webhook_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			signature TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			http_status_code INTEGER NOT NULL DEFAULT 0,
			response_body TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			attempt_count INTEGER NOT NULL DEFAULT 1,
			max_attempts INTEGER NOT NULL DEFAULT 5,
			next_retry_at %[1]s,
			delivered_at %[1]s,
			created_at %[1]s NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at %[1]s NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, ts),
		`CREATE INDEX IF NOT EXISTS idx_webhooks_project ON webhooks(project_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_logs_webhook ON webhook_delivery_logs(webhook_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_logs_due ON webhook_delivery_logs(status, next_retry_at) WHERE status = 'pending'`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// --- Webhooks ---

const webhookColumns = `id, project_id, name, url, secret, events, status, retry_count, last_triggered_at, last_delivery_status, created_at, updated_at`

func (s *SQLStorage) CreateWebhook(ctx context.Context, wh *models.Webhook) error {
	events, err := json.Marshal(wh.Events)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx,
		`INSERT INTO webhooks (`+webhookColumns+`) VALUES (`+s.dialect.placeholders(12)+`)`,
		wh.ID, wh.ProjectID, wh.Name, wh.URL, wh.Secret, string(events), wh.Status, wh.RetryCount,
		wh.LastTriggeredAt, wh.LastDeliveryStatus, wh.CreatedAt.UTC(), wh.UpdatedAt.UTC(),
	)
	return err
}

func (s *SQLStorage) scanWebhook(row interface{ Scan(...any) error }) (*models.Webhook, error) {
	var wh models.Webhook
	var events string
	err := row.Scan(&wh.ID, &wh.ProjectID, &wh.Name, &wh.URL, &wh.Secret, &events, &wh.Status, &wh.RetryCount,
		&wh.LastTriggeredAt, &wh.LastDeliveryStatus, &wh.CreatedAt, &wh.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(events), &wh.Events); err != nil {
		return nil, fmt.Errorf("decode events for webhook %s: %w", wh.ID, err)
	}
	return &wh, nil
}

func (s *SQLStorage) scanWebhooks(rows *sql.Rows) ([]models.Webhook, error) {
	defer rows.Close()

	var webhooks []models.Webhook
	for rows.Next() {
		wh, err := s.scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, *wh)
	}
	return webhooks, rows.Err()
}

func (s *SQLStorage) GetWebhook(ctx context.Context, id string) (*models.Webhook, error) {
	row := s.queryRow(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id)
	wh, err := s.scanWebhook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return wh, err
}

func (s *SQLStorage) ListWebhooks(ctx context.Context, projectID string) ([]models.Webhook, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if projectID == "" {
		rows, err = s.query(ctx, `SELECT `+webhookColumns+` FROM webhooks ORDER BY created_at DESC`)
	} else {
		rows, err = s.query(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	}
	if err != nil {
		return nil, err
	}
	return s.scanWebhooks(rows)
}

func (s *SQLStorage) UpdateWebhook(ctx context.Context, wh *models.Webhook) error {
	events, err := json.Marshal(wh.Events)
	if err != nil {
		return err
	}
	wh.UpdatedAt = time.Now().UTC()
	res, err := s.exec(ctx,
		`UPDATE webhooks SET name = ?, url = ?, events = ?, status = ?, updated_at = ? WHERE id = ?`,
		wh.Name, wh.URL, string(events), wh.Status, wh.UpdatedAt, wh.ID,
	)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *SQLStorage) DeleteWebhook(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *SQLStorage) SetWebhookStatus(ctx context.Context, id string, status models.WebhookStatus) error {
	res, err := s.exec(ctx, `UPDATE webhooks SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *SQLStorage) RotateWebhookSecret(ctx context.Context, id, secret string) error {
	res, err := s.exec(ctx, `UPDATE webhooks SET secret = ?, updated_at = ? WHERE id = ?`, secret, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *SQLStorage) FindActiveByProjectAndEvent(ctx context.Context, projectID, event string) ([]models.Webhook, error) {
	rows, err := s.query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE project_id = ? AND status = ? ORDER BY created_at ASC`,
		projectID, models.WebhookActive)
	if err != nil {
		return nil, err
	}
	all, err := s.scanWebhooks(rows)
	if err != nil {
		return nil, err
	}

	matched := all[:0]
	for _, wh := range all {
		if wh.Subscribed(event) {
			matched = append(matched, wh)
		}
	}
	return matched, nil
}

func (s *SQLStorage) FindWebhooksByIDs(ctx context.Context, ids []string) ([]models.Webhook, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id IN (`+s.dialect.placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	return s.scanWebhooks(rows)
}

func (s *SQLStorage) RecordWebhookDelivery(ctx context.Context, id string, status models.DeliveryStatus, at time.Time, retried bool) error {
	inc := 0
	if retried {
		inc = 1
	}
	_, err := s.exec(ctx,
		`UPDATE webhooks SET last_triggered_at = ?, last_delivery_status = ?, retry_count = retry_count + ?, updated_at = ? WHERE id = ?`,
		at.UTC(), status, inc, time.Now().UTC(), id,
	)
	return err
}

// --- Delivery log ---

const deliveryColumns = `id, webhook_id, event_type, payload, signature, status, http_status_code, response_body, error_message, attempt_count, max_attempts, next_retry_at, delivered_at, created_at, updated_at`

func (s *SQLStorage) CreateDeliveryLog(ctx context.Context, d *models.DeliveryLogEntry) error {
	d.Status = models.DeliveryPending
	d.AttemptCount = 1
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = models.DefaultMaxAttempts
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.UpdatedAt = d.CreatedAt

	_, err := s.exec(ctx,
		`INSERT INTO webhook_delivery_logs (`+deliveryColumns+`) VALUES (`+s.dialect.placeholders(15)+`)`,
		d.ID, d.WebhookID, d.EventType, d.Payload, d.Signature, d.Status, d.HTTPStatusCode, d.ResponseBody,
		d.ErrorMessage, d.AttemptCount, d.MaxAttempts, utcPtr(d.NextRetryAt), utcPtr(d.DeliveredAt),
		d.CreatedAt.UTC(), d.UpdatedAt.UTC(),
	)
	return err
}

// UpdateDeliveryLog applies the mutable column set. Payload and signature are
// never part of the statement.
func (s *SQLStorage) UpdateDeliveryLog(ctx context.Context, id string, u models.DeliveryUpdate) error {
	res, err := s.exec(ctx,
		`UPDATE webhook_delivery_logs
		 SET status = ?, http_status_code = ?, response_body = ?, error_message = ?, attempt_count = ?,
		     next_retry_at = ?, delivered_at = ?, updated_at = ?
		 WHERE id = ?`,
		u.Status, u.HTTPStatusCode, u.ResponseBody, u.ErrorMessage, u.AttemptCount,
		utcPtr(u.NextRetryAt), utcPtr(u.DeliveredAt), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *SQLStorage) scanDelivery(row interface{ Scan(...any) error }) (*models.DeliveryLogEntry, error) {
	var d models.DeliveryLogEntry
	err := row.Scan(&d.ID, &d.WebhookID, &d.EventType, &d.Payload, &d.Signature, &d.Status, &d.HTTPStatusCode,
		&d.ResponseBody, &d.ErrorMessage, &d.AttemptCount, &d.MaxAttempts, &d.NextRetryAt, &d.DeliveredAt,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLStorage) scanDeliveries(rows *sql.Rows) ([]models.DeliveryLogEntry, error) {
	defer rows.Close()

	var entries []models.DeliveryLogEntry
	for rows.Next() {
		d, err := s.scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *d)
	}
	return entries, rows.Err()
}

func (s *SQLStorage) GetDeliveryLog(ctx context.Context, id string) (*models.DeliveryLogEntry, error) {
	row := s.queryRow(ctx, `SELECT `+deliveryColumns+` FROM webhook_delivery_logs WHERE id = ?`, id)
	d, err := s.scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *SQLStorage) ListDeliveryLogs(ctx context.Context, webhookID string, limit, offset int) ([]models.DeliveryLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_delivery_logs WHERE webhook_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		webhookID, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.scanDeliveries(rows)
}

func (s *SQLStorage) FindDueForRetry(ctx context.Context, limit int, now time.Time) ([]models.DeliveryLogEntry, error) {
	if limit <= 0 {
		limit = DefaultRetryBatch
	}
	rows, err := s.query(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_delivery_logs
		 WHERE status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?
		 ORDER BY next_retry_at ASC LIMIT ?`,
		models.DeliveryPending, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return s.scanDeliveries(rows)
}

// --- Stats ---

func (s *SQLStorage) GetStats(ctx context.Context, projectID string) (*Stats, error) {
	stats := &Stats{}

	err := s.queryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) FROM webhooks WHERE project_id = ?`,
		models.WebhookActive, projectID,
	).Scan(&stats.TotalWebhooks, &stats.ActiveWebhooks)
	if err != nil {
		return nil, fmt.Errorf("count webhooks: %w", err)
	}

	err = s.queryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN d.status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN d.status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN d.status = ? THEN 1 ELSE 0 END), 0)
		 FROM webhook_delivery_logs d JOIN webhooks w ON d.webhook_id = w.id
		 WHERE w.project_id = ?`,
		models.DeliveryDelivered, models.DeliveryFailed, models.DeliveryPending, projectID,
	).Scan(&stats.TotalDeliveries, &stats.DeliveredCount, &stats.FailedCount, &stats.PendingCount)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}

	if stats.TotalDeliveries > 0 {
		stats.SuccessRate = float64(stats.DeliveredCount) / float64(stats.TotalDeliveries) * 100
	}
	return stats, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

var _ Storage = (*SQLStorage)(nil)
