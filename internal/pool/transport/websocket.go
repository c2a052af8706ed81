package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig controls the persistent connection's reconnect and
// heartbeat behavior (spec §4.1: "supports user-configured reconnect and
// heartbeat; the transport object is exposed for state inspection").
type WebSocketConfig struct {
	URL                  string
	Headers              map[string]string
	ReconnectMaxAttempts int
	ReconnectBackoff     time.Duration
	ReconnectJitter      float64
	HeartbeatInterval    time.Duration
}

// WebSocketClient is the websocket transport. Unlike the stdio/http
// transports it keeps a background goroutine that reconnects on drop and
// sends periodic pings; RPC calls block on the same pending-request map
// pattern as the stdio transport.
type WebSocketClient struct {
	cfg WebSocketConfig

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[int64]chan Response

	connected bool

	done      chan struct{}
	closeOnce sync.Once
}

func DialWebSocket(ctx context.Context, cfg WebSocketConfig) (*WebSocketClient, error) {
	c := &WebSocketClient{cfg: cfg, pending: make(map[int64]chan Response), done: make(chan struct{})}
	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	go c.heartbeatLoop()
	return c, nil
}

func (c *WebSocketClient) dial(ctx context.Context) error {
	hdr := make(map[string][]string, len(c.cfg.Headers))
	for k, v := range c.cfg.Headers {
		hdr[k] = []string{v}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, hdr)
	if err != nil {
		return fmt.Errorf("websocket transport: dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

func (c *WebSocketClient) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.connected = false
			}
			c.mu.Unlock()
			c.failAllPending(err)
			go c.reconnectLoop()
			return
		}
		var resp Response
		if json.Unmarshal(raw, &resp) != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
			close(ch)
		}
	}
}

func (c *WebSocketClient) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- Response{ID: id, Error: &RPCError{Code: -1, Message: err.Error()}}
		close(ch)
	}
	c.pending = make(map[int64]chan Response)
}

func (c *WebSocketClient) reconnectLoop() {
	attempts := c.cfg.ReconnectMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := c.cfg.ReconnectBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-c.done:
			return
		default:
		}

		wait := time.Duration(float64(backoff) * math.Pow(2, float64(attempt-1)))
		if c.cfg.ReconnectJitter > 0 {
			wait += time.Duration(rand.Float64() * c.cfg.ReconnectJitter * float64(wait))
		}
		select {
		case <-c.done:
			return
		case <-time.After(wait):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			return
		}
	}
}

func (c *WebSocketClient) heartbeatLoop() {
	interval := c.cfg.HeartbeatInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn, connected := c.conn, c.connected
			c.mu.Unlock()
			if connected && conn != nil {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

// IsConnected reports the transport's live socket state, independent of the
// owning Connection's pool-level state, for status inspection.
func (c *WebSocketClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *WebSocketClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	conn, connected := c.conn, c.connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return nil, fmt.Errorf("websocket transport: not connected")
	}

	req, err := NewRequest(method, params)
	if err != nil {
		return nil, err
	}
	ch := make(chan Response, 1)
	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return nil, fmt.Errorf("websocket transport: write: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

func (c *WebSocketClient) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	raw, err := c.call(ctx, MethodToolsList, map[string]any{})
	if err != nil {
		return nil, err
	}
	return DecodeToolsList(raw)
}

func (c *WebSocketClient) CallTool(ctx context.Context, name string, params map[string]any) (CallResult, error) {
	raw, err := c.call(ctx, MethodToolsCall, map[string]any{"name": name, "arguments": params})
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Raw: raw}, nil
}

func (c *WebSocketClient) ListPrompts(ctx context.Context) ([]PromptDescriptor, error) {
	raw, err := c.call(ctx, MethodPromptsList, map[string]any{})
	if err != nil {
		return nil, err
	}
	return DecodePromptsList(raw)
}

func (c *WebSocketClient) GetPrompt(ctx context.Context, name string, params map[string]any) (CallResult, error) {
	raw, err := c.call(ctx, MethodPromptsGet, map[string]any{"name": name, "arguments": params})
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Raw: raw}, nil
}

func (c *WebSocketClient) ListResources(ctx context.Context) ([]ResourceDescriptor, error) {
	raw, err := c.call(ctx, MethodResourcesList, map[string]any{})
	if err != nil {
		return nil, err
	}
	return DecodeResourcesList(raw)
}

func (c *WebSocketClient) ReadResource(ctx context.Context, uri string) (CallResult, error) {
	raw, err := c.call(ctx, MethodResourcesRead, map[string]any{"uri": uri})
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Raw: raw}, nil
}

// Ping issues the same low-cost tools/list probe the health checker already
// calls to refresh the Registry, per spec.md's "low-cost capability probe
// (list tools)" health-check protocol.
func (c *WebSocketClient) Ping(ctx context.Context) error {
	_, err := c.call(ctx, MethodToolsList, map[string]any{})
	return err
}

func (c *WebSocketClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.connected = false
		c.mu.Unlock()
		if conn != nil {
			err = conn.Close()
		}
	})
	return err
}
