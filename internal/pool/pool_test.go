package pool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type fakeClient struct {
	mu        sync.Mutex
	pingErr   error
	closed    bool
	pingCalls int
}

func (f *fakeClient) ListTools(ctx context.Context) ([]ToolDescriptor, error) { return nil, nil }
func (f *fakeClient) CallTool(ctx context.Context, name string, params map[string]any) (CallResult, error) {
	return CallResult{}, nil
}
func (f *fakeClient) ListPrompts(ctx context.Context) ([]PromptDescriptor, error) { return nil, nil }
func (f *fakeClient) GetPrompt(ctx context.Context, name string, params map[string]any) (CallResult, error) {
	return CallResult{}, nil
}
func (f *fakeClient) ListResources(ctx context.Context) ([]ResourceDescriptor, error) {
	return nil, nil
}
func (f *fakeClient) ReadResource(ctx context.Context, uri string) (CallResult, error) {
	return CallResult{}, nil
}
func (f *fakeClient) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingCalls++
	return f.pingErr
}
func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "json", Component: "pool-test"})
}

func TestPoolConnectReturnsClientOnSuccess(t *testing.T) {
	p := New(testLogger(), nil, nil)
	fc := &fakeClient{}
	p.dialFunc = func(ctx context.Context, cfg model.ServerConfig) (Client, error) { return fc, nil }

	_, err := p.Connect(context.Background(), model.ServerConfig{ID: "s1"})
	require.NoError(t, err)

	client, ok := p.GetClient("s1")
	require.True(t, ok)
	require.Same(t, fc, client)

	status, ok := p.GetStatus("s1")
	require.True(t, ok)
	require.Equal(t, StateConnected, status.State)
}

func TestPoolConnectPropagatesDialError(t *testing.T) {
	p := New(testLogger(), nil, nil)
	p.dialFunc = func(ctx context.Context, cfg model.ServerConfig) (Client, error) {
		return nil, fmt.Errorf("boom")
	}

	_, err := p.Connect(context.Background(), model.ServerConfig{ID: "s1"})
	require.Error(t, err)

	_, ok := p.GetClient("s1")
	require.False(t, ok, "an errored connection must not expose a client")

	status, ok := p.GetStatus("s1")
	require.True(t, ok)
	require.Equal(t, StateError, status.State)
	require.Equal(t, "boom", status.LastError)
}

func TestPoolConnectIsIdempotentWhenAlreadyConnected(t *testing.T) {
	p := New(testLogger(), nil, nil)
	dialCount := 0
	p.dialFunc = func(ctx context.Context, cfg model.ServerConfig) (Client, error) {
		dialCount++
		return &fakeClient{}, nil
	}

	_, err := p.Connect(context.Background(), model.ServerConfig{ID: "s1"})
	require.NoError(t, err)
	_, err = p.Connect(context.Background(), model.ServerConfig{ID: "s1"})
	require.NoError(t, err)

	require.Equal(t, 1, dialCount)
}

func TestPoolDisconnectClosesClientAndDropsRecord(t *testing.T) {
	p := New(testLogger(), nil, nil)
	fc := &fakeClient{}
	p.dialFunc = func(ctx context.Context, cfg model.ServerConfig) (Client, error) { return fc, nil }

	_, err := p.Connect(context.Background(), model.ServerConfig{ID: "s1"})
	require.NoError(t, err)

	p.Disconnect("s1")

	fc.mu.Lock()
	closed := fc.closed
	fc.mu.Unlock()
	require.True(t, closed)

	_, ok := p.GetStatus("s1")
	require.False(t, ok)
}

func TestPoolDisconnectAllTearsDownEveryConnection(t *testing.T) {
	p := New(testLogger(), nil, nil)
	clients := map[string]*fakeClient{"a": {}, "b": {}, "c": {}}
	p.dialFunc = func(ctx context.Context, cfg model.ServerConfig) (Client, error) {
		return clients[cfg.ID], nil
	}

	for id := range clients {
		_, err := p.Connect(context.Background(), model.ServerConfig{ID: id})
		require.NoError(t, err)
	}

	p.DisconnectAll()

	for id, fc := range clients {
		fc.mu.Lock()
		closed := fc.closed
		fc.mu.Unlock()
		require.True(t, closed, "client %s should be closed", id)
		_, ok := p.GetStatus(id)
		require.False(t, ok)
	}
}

func TestPoolHealthCheckReconnectsOnFailure(t *testing.T) {
	p := New(testLogger(), nil, nil)
	failing := &fakeClient{pingErr: fmt.Errorf("unreachable")}
	healthy := &fakeClient{}
	dialCount := 0
	p.dialFunc = func(ctx context.Context, cfg model.ServerConfig) (Client, error) {
		dialCount++
		if dialCount == 1 {
			return failing, nil
		}
		return healthy, nil
	}

	cfg := model.ServerConfig{ID: "s1", Health: model.HealthCheckPolicy{Enabled: true, IntervalMs: 5, TimeoutMs: 50}}
	_, err := p.Connect(context.Background(), cfg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		client, ok := p.GetClient("s1")
		return ok && client == Client(healthy)
	}, time.Second, 5*time.Millisecond, "pool should reconnect to a healthy client after a failed probe")

	p.Disconnect("s1")
}
