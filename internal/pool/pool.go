package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/pool/transport"
	"github.com/opencore/mcpgate/internal/storage/model"
)

// State is a Connection's lifecycle state (spec §3's Connection entity).
// Connections are in-memory only; the Pool is their exclusive owner and
// they are never written to durable storage.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Status is the externally-visible snapshot of a Connection, returned by
// GetStatus for the admin /servers endpoint.
type Status struct {
	ServerID   string
	State      State
	LastHealth time.Time
	LastError  string
}

// Connection is the Pool's private record; Client is only populated while
// State == StateConnected.
type Connection struct {
	mu         sync.RWMutex
	serverID   string
	state      State
	client     Client
	lastHealth time.Time
	lastErr    string

	healthCancel context.CancelFunc
}

func (c *Connection) snapshot() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{ServerID: c.serverID, State: c.state, LastHealth: c.lastHealth, LastError: c.lastErr}
}

// EventPublisher is the narrow slice of the Event Fabric the Pool needs;
// kept local to avoid importing internal/events, which has no reason to
// know about connection lifecycle internals.
type EventPublisher interface {
	Publish(kind string, payload any)
}

// Pool manages one Connection per server id across the four transport
// variants, with health-check-driven reconnection (spec §4.1).
type Pool struct {
	log    *logging.Logger
	events EventPublisher
	tokens *transport.TokenCache

	// dialFunc defaults to p.dial; overridable in tests to substitute a fake
	// Client without spawning real processes or sockets.
	dialFunc func(ctx context.Context, cfg model.ServerConfig) (Client, error)

	mu          sync.RWMutex
	connections map[string]*Connection
}

func New(log *logging.Logger, events EventPublisher, tokens *transport.TokenCache) *Pool {
	p := &Pool{log: log, events: events, tokens: tokens, connections: make(map[string]*Connection)}
	p.dialFunc = p.dial
	return p
}

// SetDialFuncForTest overrides the dial function used by Connect/probe.
// Exported solely so other packages' tests (router, registry-driven
// wiring) can inject a fake Client without this package's own test file;
// production code must never call this.
func (p *Pool) SetDialFuncForTest(fn func(ctx context.Context, cfg model.ServerConfig) (Client, error)) {
	p.dialFunc = fn
}

// Connect returns the existing connection if already connected, otherwise
// dials a fresh transport per cfg.Transport.Kind. Connect errors propagate
// to the caller; the connection record is retained in StateError.
func (p *Pool) Connect(ctx context.Context, cfg model.ServerConfig) (*Connection, error) {
	p.mu.Lock()
	conn, ok := p.connections[cfg.ID]
	if !ok {
		conn = &Connection{serverID: cfg.ID, state: StateDisconnected}
		p.connections[cfg.ID] = conn
	}
	p.mu.Unlock()

	conn.mu.RLock()
	alreadyConnected := conn.state == StateConnected
	conn.mu.RUnlock()
	if alreadyConnected {
		return conn, nil
	}

	conn.mu.Lock()
	conn.state = StateConnecting
	conn.mu.Unlock()

	client, err := p.dialFunc(ctx, cfg)
	if err != nil {
		conn.mu.Lock()
		conn.state = StateError
		conn.lastErr = err.Error()
		conn.mu.Unlock()
		p.log.WithContext(ctx).WithError(err).Warn("server connect failed")
		return conn, err
	}

	conn.mu.Lock()
	conn.state = StateConnected
	conn.client = client
	conn.lastHealth = time.Now()
	conn.lastErr = ""
	conn.mu.Unlock()

	if p.events != nil {
		p.events.Publish("server.connected", map[string]any{"server_id": cfg.ID})
	}

	if cfg.Health.Enabled {
		p.scheduleHealthCheck(conn, cfg)
	}
	return conn, nil
}

func (p *Pool) dial(ctx context.Context, cfg model.ServerConfig) (Client, error) {
	switch cfg.Transport.Kind {
	case model.TransportStdio:
		return transport.DialStdio(ctx, cfg.Transport.Command, cfg.Transport.Args, cfg.Transport.Env)

	case model.TransportSSE, model.TransportHTTP:
		staticHeaders, authHeader, err := p.authFor(cfg)
		if err != nil {
			return nil, err
		}
		return transport.NewHTTPClient(cfg.Transport.URL, staticHeaders, authHeader), nil

	case model.TransportWebSocket:
		staticHeaders, authHeader, err := p.authFor(cfg)
		if err != nil {
			return nil, err
		}
		hdrs := staticHeaders
		if authHeader != nil {
			dynamic, err := authHeader(ctx)
			if err != nil {
				return nil, err
			}
			for k, v := range dynamic {
				hdrs[k] = v
			}
		}
		return transport.DialWebSocket(ctx, transport.WebSocketConfig{
			URL:                  cfg.Transport.URL,
			Headers:              hdrs,
			ReconnectMaxAttempts: cfg.Transport.ReconnectMaxAttempts,
			ReconnectBackoff:     time.Duration(cfg.Transport.ReconnectBackoffMs) * time.Millisecond,
			ReconnectJitter:      cfg.Transport.ReconnectJitter,
			HeartbeatInterval:    time.Duration(cfg.Transport.HeartbeatIntervalMs) * time.Millisecond,
		})

	default:
		return nil, fmt.Errorf("pool: unknown transport kind %q", cfg.Transport.Kind)
	}
}

// authFor derives the static headers (api_key) and/or the per-call auth
// header function (oauth2) for a server's sse/http/websocket transport.
func (p *Pool) authFor(cfg model.ServerConfig) (map[string]string, transport.AuthHeaderFunc, error) {
	headers := make(map[string]string, len(cfg.Transport.Headers))
	for k, v := range cfg.Transport.Headers {
		headers[k] = v
	}

	switch cfg.Auth.Kind {
	case model.AuthNone:
		return headers, nil, nil

	case model.AuthAPIKey:
		name := cfg.Auth.APIKeyHeader
		if name == "" {
			name = "Authorization"
		}
		headers[name] = cfg.Auth.APIKeyValue
		return headers, nil, nil

	case model.AuthOAuth2:
		if p.tokens == nil {
			return nil, nil, fmt.Errorf("pool: oauth2 auth configured but no token cache wired")
		}
		auth := cfg.Auth
		serverID := cfg.ID
		return headers, func(ctx context.Context) (map[string]string, error) {
			tok, err := p.tokens.Get(ctx, serverID, auth.OAuth2TokenURL, auth.OAuth2ClientID, auth.OAuth2ClientSecret, auth.OAuth2Scopes)
			if err != nil {
				return nil, err
			}
			return map[string]string{"Authorization": "Bearer " + tok}, nil
		}, nil

	default:
		return nil, nil, fmt.Errorf("pool: unknown auth kind %q", cfg.Auth.Kind)
	}
}

// Disconnect cancels the health probe, swallows the transport's release
// error (spec §4.1: "all disconnect errors are swallowed"), and drops the
// connection record.
func (p *Pool) Disconnect(serverID string) {
	p.mu.Lock()
	conn, ok := p.connections[serverID]
	if ok {
		delete(p.connections, serverID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	conn.mu.Lock()
	if conn.healthCancel != nil {
		conn.healthCancel()
	}
	client := conn.client
	conn.state = StateDisconnected
	conn.client = nil
	conn.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
	if p.events != nil {
		p.events.Publish("server.disconnected", map[string]any{"server_id": serverID})
	}
}

// DisconnectAll tears down every connection concurrently.
func (p *Pool) DisconnectAll() {
	p.mu.RLock()
	ids := make([]string, 0, len(p.connections))
	for id := range p.connections {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			p.Disconnect(id)
		}(id)
	}
	wg.Wait()
}

// GetClient returns the backend client only if the connection is connected.
func (p *Pool) GetClient(serverID string) (Client, bool) {
	p.mu.RLock()
	conn, ok := p.connections[serverID]
	p.mu.RUnlock()
	if !ok {
		return nil, false
	}
	conn.mu.RLock()
	defer conn.mu.RUnlock()
	if conn.state != StateConnected {
		return nil, false
	}
	return conn.client, true
}

// GetStatus reports a connection's current lifecycle snapshot.
func (p *Pool) GetStatus(serverID string) (Status, bool) {
	p.mu.RLock()
	conn, ok := p.connections[serverID]
	p.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	return conn.snapshot(), true
}

// scheduleHealthCheck starts the periodic probe goroutine for conn,
// replacing the reconnect sequence on probe failure (spec §4.1).
func (p *Pool) scheduleHealthCheck(conn *Connection, cfg model.ServerConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	conn.mu.Lock()
	if conn.healthCancel != nil {
		conn.healthCancel()
	}
	conn.healthCancel = cancel
	conn.mu.Unlock()

	interval := time.Duration(cfg.Health.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := time.Duration(cfg.Health.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.probe(ctx, conn, cfg, timeout)
			}
		}
	}()
}

func (p *Pool) probe(ctx context.Context, conn *Connection, cfg model.ServerConfig, timeout time.Duration) {
	conn.mu.RLock()
	client := conn.client
	wasConnected := conn.state == StateConnected
	conn.mu.RUnlock()
	if client == nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	err := client.Ping(probeCtx)
	cancel()

	if err == nil {
		conn.mu.Lock()
		if !wasConnected {
			conn.state = StateConnected
		}
		conn.lastHealth = time.Now()
		conn.lastErr = ""
		conn.mu.Unlock()
		return
	}

	conn.mu.Lock()
	conn.state = StateError
	conn.lastErr = err.Error()
	conn.mu.Unlock()
	if p.events != nil {
		p.events.Publish("server.health_failed", map[string]any{"server_id": cfg.ID, "error": err.Error()})
	}

	reconnectCtx, reconnectCancel := context.WithTimeout(context.Background(), timeout)
	defer reconnectCancel()
	_ = client.Close()
	newClient, dialErr := p.dialFunc(reconnectCtx, cfg)
	if dialErr != nil {
		p.log.WithContext(ctx).WithError(dialErr).Warn("server reconnect failed")
		return
	}
	conn.mu.Lock()
	conn.client = newClient
	conn.state = StateConnected
	conn.lastHealth = time.Now()
	conn.lastErr = ""
	conn.mu.Unlock()
}
