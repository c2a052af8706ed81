package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/opencore/mcpgate/internal/ids"
	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/storage"
	"github.com/opencore/mcpgate/internal/storage/model"
)

const responseSnippetLimit = 512

// HTTPDoer is satisfied by *http.Client; narrowed for test seams.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookWorkerConfig configures delivery scheduling.
type WebhookWorkerConfig struct {
	// PollInterval is how often the worker re-scans for due deliveries.
	PollInterval time.Duration
	// BatchSize bounds how many pending deliveries are pulled per scan.
	BatchSize int
}

func (c WebhookWorkerConfig) withDefaults() WebhookWorkerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	return c
}

// WebhookWorker subscribes to the Bus, fans matching events out into
// WebhookDelivery rows, and separately drains pending deliveries on a
// poll loop with geometric backoff (spec §4.5's Webhooks paragraph).
// The lifecycle (Start/Stop via cancel + WaitGroup) follows the
// teacher's automation Scheduler.
type WebhookWorker struct {
	log    *logging.Logger
	store  storage.WebhookStore
	bus    *Bus
	client HTTPDoer
	cfg    WebhookWorkerConfig
	clock  func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewWebhookWorker(log *logging.Logger, store storage.WebhookStore, bus *Bus, client HTTPDoer, cfg WebhookWorkerConfig) *WebhookWorker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookWorker{log: log, store: store, bus: bus, client: client, cfg: cfg.withDefaults(), clock: time.Now}
}

// Start subscribes to every bus event and begins the delivery poll loop.
func (w *WebhookWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	ch, unsubscribe := w.bus.Subscribe(Filter{})

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-runCtx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				w.enqueue(runCtx, evt)
			}
		}
	}()

	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				w.drainDue(runCtx)
			}
		}
	}()

	w.log.Info("webhook worker started")
	return nil
}

// Stop cancels both loops and waits for them to exit or ctx to expire.
func (w *WebhookWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	w.running = false
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.log.Info("webhook worker stopped")
	return nil
}

// enqueue creates one pending WebhookDelivery row per enabled
// subscription whose event kinds and server filter match evt.
func (w *WebhookWorker) enqueue(ctx context.Context, evt Event) {
	subs, err := w.store.ListSubscriptions(ctx, evt.Kind)
	if err != nil {
		w.log.WithError(err).Warn("failed to list webhook subscriptions")
		return
	}
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		w.log.WithError(err).Warn("failed to marshal event payload for webhook delivery")
		return
	}
	for _, sub := range subs {
		if !sub.Enabled {
			continue
		}
		if sub.ServerFilter != "" && sub.ServerFilter != evt.ServerID {
			continue
		}
		d := model.WebhookDelivery{
			ID:             ids.New(),
			SubscriptionID: sub.ID,
			EventKind:      evt.Kind,
			Payload:        payload,
			Status:         model.DeliveryPending,
			CreatedAt:      w.clock(),
			UpdatedAt:      w.clock(),
		}
		if err := w.store.CreateDelivery(ctx, d); err != nil {
			w.log.WithError(err).Warn("failed to persist webhook delivery")
		}
	}
}

// drainDue pulls pending deliveries whose next backoff window has
// elapsed and attempts each one.
func (w *WebhookWorker) drainDue(ctx context.Context) {
	deliveries, err := w.store.ListPendingDeliveries(ctx, w.cfg.BatchSize)
	if err != nil {
		w.log.WithError(err).Warn("failed to list pending webhook deliveries")
		return
	}
	for _, d := range deliveries {
		sub, err := w.store.GetSubscription(ctx, d.SubscriptionID)
		if err != nil {
			w.log.WithError(err).Warn("failed to load subscription for pending delivery")
			continue
		}
		if !w.due(d, sub) {
			continue
		}
		w.attempt(ctx, sub, d)
	}
}

// due reports whether a delivery's backoff window (retryDelayMs *
// 2^(attempt-1), measured from its last update) has elapsed. A
// never-attempted delivery (Attempts == 0) is always due.
func (w *WebhookWorker) due(d model.WebhookDelivery, sub model.WebhookSubscription) bool {
	if d.Attempts == 0 {
		return true
	}
	wait := backoffDelay(sub.RetryDelayMs, d.Attempts)
	return w.clock().Sub(d.UpdatedAt) >= wait
}

// attempt posts the delivery's payload once, signs it with the
// subscription's secret if set, and records the outcome. After
// subscription.RetryCount failed attempts the delivery is abandoned in
// the failed state (spec §4.5: "attempts ≤ subscription.retryCount + 1").
func (w *WebhookWorker) attempt(ctx context.Context, sub model.WebhookSubscription, d model.WebhookDelivery) {
	timeout := 10 * time.Second
	if sub.TimeoutMs > 0 {
		timeout = time.Duration(sub.TimeoutMs) * time.Millisecond
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(d.Payload))
	if err != nil {
		w.recordFailure(ctx, d, 0, "", err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", d.EventKind)
	if sub.Secret != "" {
		req.Header.Set("X-Webhook-Signature", signPayload(sub.Secret, d.Payload))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		w.recordFailure(ctx, d, 0, "", err.Error())
		return
	}
	defer resp.Body.Close()
	snippet := readSnippet(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.Status = model.DeliverySuccess
		d.Attempts++
		d.LastHTTPStatus = resp.StatusCode
		d.ResponseSnippet = snippet
		d.Error = ""
		d.UpdatedAt = w.clock()
		if err := w.store.UpdateDelivery(ctx, d); err != nil {
			w.log.WithError(err).Warn("failed to persist successful webhook delivery")
		}
		return
	}
	w.recordFailure(ctx, d, resp.StatusCode, snippet, fmt.Sprintf("webhook responded %d", resp.StatusCode))
}

func (w *WebhookWorker) recordFailure(ctx context.Context, d model.WebhookDelivery, status int, snippet, errMsg string) {
	d.Attempts++
	d.LastHTTPStatus = status
	d.ResponseSnippet = snippet
	d.Error = errMsg
	d.UpdatedAt = w.clock()

	sub, err := w.store.GetSubscription(ctx, d.SubscriptionID)
	if err == nil && d.Attempts > sub.RetryCount {
		d.Status = model.DeliveryFailed
	} else {
		d.Status = model.DeliveryPending
	}
	if err := w.store.UpdateDelivery(ctx, d); err != nil {
		w.log.WithError(err).Warn("failed to persist failed webhook delivery")
	}
}

// signPayload computes spec §6's webhook signature header value:
// "sha256=<hex HMAC of body using subscription.secret>".
func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func readSnippet(r io.Reader) string {
	buf := make([]byte, responseSnippetLimit)
	n, _ := io.ReadFull(r, buf)
	return string(buf[:n])
}

// backoffDelay is geometricBackoff's webhook-domain twin: retryDelayMs *
// 2^(attempt-1), attempt 1-indexed as the attempt that just failed.
func backoffDelay(retryDelayMs int64, attempt int) time.Duration {
	return time.Duration(float64(retryDelayMs)*math.Pow(2, float64(attempt-1))) * time.Millisecond
}
