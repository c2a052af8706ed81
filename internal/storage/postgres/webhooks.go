package postgres

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type webhookSubscriptionRow struct {
	ID           string    `db:"id"`
	URL          string    `db:"url"`
	EventKinds   []byte    `db:"event_kinds"`
	Secret       string    `db:"secret"`
	ServerFilter string    `db:"server_filter"`
	RetryCount   int       `db:"retry_count"`
	RetryDelayMs int64     `db:"retry_delay_ms"`
	TimeoutMs    int64     `db:"timeout_ms"`
	Enabled      bool      `db:"enabled"`
	CreatedAt    time.Time `db:"created_at"`
}

type webhookDeliveryRow struct {
	ID              string    `db:"id"`
	SubscriptionID  string    `db:"subscription_id"`
	EventKind       string    `db:"event_kind"`
	Payload         []byte    `db:"payload"`
	Status          string    `db:"status"`
	Attempts        int       `db:"attempts"`
	LastHTTPStatus  int       `db:"last_http_status"`
	ResponseSnippet string    `db:"response_snippet"`
	Error           string    `db:"error"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// WebhookStore persists WebhookSubscriptions and their delivery attempts
// (spec §4.5 Event Fabric).
type WebhookStore struct{ *BaseStore }

func NewWebhookStore(b *BaseStore) *WebhookStore { return &WebhookStore{b} }

func (s *WebhookStore) CreateSubscription(ctx context.Context, sub model.WebhookSubscription) error {
	kinds, _ := jsonCol(sub.EventKinds)
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO webhook_subscriptions (id, url, event_kinds, secret, server_filter, retry_count, retry_delay_ms, timeout_ms, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sub.ID, sub.URL, kinds, sub.Secret, sub.ServerFilter, sub.RetryCount, sub.RetryDelayMs, sub.TimeoutMs, sub.Enabled, sub.CreatedAt)
	if err != nil {
		return errs.Internal("insert webhook subscription", err)
	}
	return nil
}

func (s *WebhookStore) GetSubscription(ctx context.Context, id string) (model.WebhookSubscription, error) {
	var r webhookSubscriptionRow
	err := s.Querier(ctx).GetContext(ctx, &r, `SELECT id, url, event_kinds, secret, server_filter, retry_count, retry_delay_ms, timeout_ms, enabled, created_at FROM webhook_subscriptions WHERE id = $1`, id)
	if isNoRows(err) {
		return model.WebhookSubscription{}, errs.NotFound("webhook_subscription", id)
	}
	if err != nil {
		return model.WebhookSubscription{}, errs.Internal("get webhook subscription", err)
	}
	return rowToSubscription(r), nil
}

func (s *WebhookStore) ListSubscriptions(ctx context.Context, eventKind string) ([]model.WebhookSubscription, error) {
	var rows []webhookSubscriptionRow
	var err error
	if eventKind == "" {
		err = s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, url, event_kinds, secret, server_filter, retry_count, retry_delay_ms, timeout_ms, enabled, created_at FROM webhook_subscriptions WHERE enabled ORDER BY created_at`)
	} else {
		err = s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, url, event_kinds, secret, server_filter, retry_count, retry_delay_ms, timeout_ms, enabled, created_at FROM webhook_subscriptions WHERE enabled AND event_kinds @> to_jsonb($1::text) ORDER BY created_at`, eventKind)
	}
	if err != nil {
		return nil, errs.Internal("list webhook subscriptions", err)
	}
	out := make([]model.WebhookSubscription, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToSubscription(r))
	}
	return out, nil
}

func (s *WebhookStore) DeleteSubscription(ctx context.Context, id string) error {
	res, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return errs.Internal("delete webhook subscription", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("webhook_subscription", id)
	}
	return nil
}

func (s *WebhookStore) CreateDelivery(ctx context.Context, d model.WebhookDelivery) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, subscription_id, event_kind, payload, status, attempts, last_http_status, response_snippet, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.SubscriptionID, d.EventKind, d.Payload, string(d.Status), d.Attempts, d.LastHTTPStatus, d.ResponseSnippet, d.Error, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return errs.Internal("insert webhook delivery", err)
	}
	return nil
}

func (s *WebhookStore) UpdateDelivery(ctx context.Context, d model.WebhookDelivery) error {
	res, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE webhook_deliveries SET status=$2, attempts=$3, last_http_status=$4, response_snippet=$5, error=$6, updated_at=$7
		WHERE id=$1`,
		d.ID, string(d.Status), d.Attempts, d.LastHTTPStatus, d.ResponseSnippet, d.Error, d.UpdatedAt)
	if err != nil {
		return errs.Internal("update webhook delivery", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("webhook_delivery", d.ID)
	}
	return nil
}

func (s *WebhookStore) ListPendingDeliveries(ctx context.Context, limit int) ([]model.WebhookDelivery, error) {
	var rows []webhookDeliveryRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, subscription_id, event_kind, payload, status, attempts, last_http_status, response_snippet, error, created_at, updated_at FROM webhook_deliveries WHERE status = $1 ORDER BY created_at LIMIT $2`, string(model.DeliveryPending), limit); err != nil {
		return nil, errs.Internal("list pending webhook deliveries", err)
	}
	out := make([]model.WebhookDelivery, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToDelivery(r))
	}
	return out, nil
}

func (s *WebhookStore) ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]model.WebhookDelivery, error) {
	var rows []webhookDeliveryRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT id, subscription_id, event_kind, payload, status, attempts, last_http_status, response_snippet, error, created_at, updated_at FROM webhook_deliveries WHERE subscription_id = $1 ORDER BY created_at DESC LIMIT $2`, subscriptionID, limit); err != nil {
		return nil, errs.Internal("list webhook deliveries", err)
	}
	out := make([]model.WebhookDelivery, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToDelivery(r))
	}
	return out, nil
}

func (s *WebhookStore) DeleteDeliveriesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM webhook_deliveries WHERE created_at < $1 AND status != $2`, cutoff, string(model.DeliveryPending))
	if err != nil {
		return 0, errs.Internal("prune webhook deliveries", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func rowToSubscription(r webhookSubscriptionRow) model.WebhookSubscription {
	sub := model.WebhookSubscription{
		ID: r.ID, URL: r.URL, Secret: r.Secret, ServerFilter: r.ServerFilter,
		RetryCount: r.RetryCount, RetryDelayMs: r.RetryDelayMs, TimeoutMs: r.TimeoutMs,
		Enabled: r.Enabled, CreatedAt: r.CreatedAt,
	}
	_ = unjsonCol(r.EventKinds, &sub.EventKinds)
	return sub
}

func rowToDelivery(r webhookDeliveryRow) model.WebhookDelivery {
	return model.WebhookDelivery{
		ID: r.ID, SubscriptionID: r.SubscriptionID, EventKind: r.EventKind, Payload: r.Payload,
		Status: model.DeliveryStatus(r.Status), Attempts: r.Attempts, LastHTTPStatus: r.LastHTTPStatus,
		ResponseSnippet: r.ResponseSnippet, Error: r.Error, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}
