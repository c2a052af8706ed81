package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/storage/memstore"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type scriptedResponse struct {
	status int
	err    error
}

// fakeDoer serves a fixed script of responses per call, in order, and
// records every request body and header it receives.
type fakeDoer struct {
	mu       sync.Mutex
	script   []scriptedResponse
	requests []*http.Request
	bodies   [][]byte
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(req.Body)
	f.requests = append(f.requests, req)
	f.bodies = append(f.bodies, body)

	idx := len(f.requests) - 1
	if idx >= len(f.script) {
		return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(nil))}, nil
	}
	resp := f.script[idx]
	if resp.err != nil {
		return nil, resp.err
	}
	return &http.Response{StatusCode: resp.status, Body: io.NopCloser(bytes.NewReader([]byte("ok")))}, nil
}

func (f *fakeDoer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "json", Component: "events-test"})
}

func TestWebhookWorkerEnqueuesDeliveryForMatchingSubscription(t *testing.T) {
	store := memstore.New().Webhooks()
	bus := New()
	doer := &fakeDoer{script: []scriptedResponse{{status: 200}}}
	worker := NewWebhookWorker(testLogger(), store, bus, doer, WebhookWorkerConfig{PollInterval: 10 * time.Millisecond})

	require.NoError(t, store.CreateSubscription(context.Background(), model.WebhookSubscription{
		ID: "sub1", URL: "http://example.invalid/hook", EventKinds: []string{"workflow.completed"},
		Enabled: true, RetryCount: 2, RetryDelayMs: 10,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, worker.Start(ctx))
	defer worker.Stop(context.Background())

	bus.Publish("workflow.completed", map[string]any{"execution_id": "exec-1"})

	require.Eventually(t, func() bool {
		return doer.callCount() >= 1
	}, time.Second, 5*time.Millisecond)

	deliveries, err := store.ListPendingDeliveries(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, deliveries, "the single successful attempt should have moved the delivery out of pending")
}

func TestWebhookWorkerIgnoresNonMatchingEventKind(t *testing.T) {
	store := memstore.New().Webhooks()
	bus := New()
	doer := &fakeDoer{}
	worker := NewWebhookWorker(testLogger(), store, bus, doer, WebhookWorkerConfig{PollInterval: 10 * time.Millisecond})

	require.NoError(t, store.CreateSubscription(context.Background(), model.WebhookSubscription{
		ID: "sub1", URL: "http://example.invalid/hook", EventKinds: []string{"workflow.failed"},
		Enabled: true, RetryCount: 2, RetryDelayMs: 10,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, worker.Start(ctx))
	defer worker.Stop(context.Background())

	bus.Publish("workflow.completed", map[string]any{"execution_id": "exec-1"})
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, doer.callCount())
}

func TestWebhookDeliverySignsPayloadWhenSecretSet(t *testing.T) {
	store := memstore.New().Webhooks()
	bus := New()
	doer := &fakeDoer{script: []scriptedResponse{{status: 200}}}
	worker := NewWebhookWorker(testLogger(), store, bus, doer, WebhookWorkerConfig{PollInterval: 10 * time.Millisecond})

	require.NoError(t, store.CreateSubscription(context.Background(), model.WebhookSubscription{
		ID: "sub1", URL: "http://example.invalid/hook", EventKinds: []string{"workflow.completed"},
		Secret: "s3cr3t", Enabled: true, RetryCount: 2, RetryDelayMs: 10,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, worker.Start(ctx))
	defer worker.Stop(context.Background())

	bus.Publish("workflow.completed", map[string]any{"execution_id": "exec-1"})

	require.Eventually(t, func() bool { return doer.callCount() >= 1 }, time.Second, 5*time.Millisecond)

	doer.mu.Lock()
	req := doer.requests[0]
	body := doer.bodies[0]
	doer.mu.Unlock()

	mac := hmac.New(sha256.New, []byte("s3cr3t"))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	require.Equal(t, want, req.Header.Get("X-Webhook-Signature"))
}

func TestWebhookDeliveryRetriesThenSucceeds(t *testing.T) {
	store := memstore.New().Webhooks()
	bus := New()
	doer := &fakeDoer{script: []scriptedResponse{{status: 500}, {status: 500}, {status: 200}}}
	worker := NewWebhookWorker(testLogger(), store, bus, doer, WebhookWorkerConfig{PollInterval: 5 * time.Millisecond})

	require.NoError(t, store.CreateSubscription(context.Background(), model.WebhookSubscription{
		ID: "sub1", URL: "http://example.invalid/hook", EventKinds: []string{"workflow.completed"},
		Enabled: true, RetryCount: 2, RetryDelayMs: 5,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, worker.Start(ctx))
	defer worker.Stop(context.Background())

	bus.Publish("workflow.completed", map[string]any{"execution_id": "exec-1"})

	require.Eventually(t, func() bool {
		return doer.callCount() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	deliveries, err := store.ListPendingDeliveries(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, deliveries, "after the third attempt succeeds the delivery must leave the pending set")
}

func TestWebhookDeliveryAbandonedAfterRetryCountExhausted(t *testing.T) {
	store := memstore.New().Webhooks()
	bus := New()
	doer := &fakeDoer{script: []scriptedResponse{{status: 500}, {status: 500}, {status: 500}}}
	worker := NewWebhookWorker(testLogger(), store, bus, doer, WebhookWorkerConfig{PollInterval: 5 * time.Millisecond})

	require.NoError(t, store.CreateSubscription(context.Background(), model.WebhookSubscription{
		ID: "sub1", URL: "http://example.invalid/hook", EventKinds: []string{"workflow.completed"},
		Enabled: true, RetryCount: 1, RetryDelayMs: 5,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, worker.Start(ctx))
	defer worker.Stop(context.Background())

	bus.Publish("workflow.completed", map[string]any{"execution_id": "exec-1"})

	require.Eventually(t, func() bool {
		return doer.callCount() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 2, doer.callCount(), "retryCount=1 allows exactly 2 attempts before abandonment")

	deliveries, err := store.ListPendingDeliveries(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, deliveries, "an abandoned delivery must not remain pending")
}

func TestSignPayloadMatchesHMACSHA256Hex(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := signPayload("secret", body)

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	require.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), sig)
}
