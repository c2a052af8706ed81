package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AuthHeaderFunc derives the headers a call should carry, recomputed per
// call so an OAuth2 bearer token can be refreshed transparently.
type AuthHeaderFunc func(ctx context.Context) (map[string]string, error)

// HTTPClient is the sse/http transport: each RPC is a single POST carrying a
// JSON-RPC envelope, with auth headers derived per-call (spec §4.1: "auth
// headers are derived... cached token, refreshed when within 60s of
// expiry"). The sse and http ServerConfig variants share this client; the
// distinction is only in how AuthHeaderFunc is built, not in the request
// shape, since the backend-specific streaming upgrade is a provider detail
// outside this gateway's public contract.
type HTTPClient struct {
	url        string
	authHeader AuthHeaderFunc
	staticHdrs map[string]string
	httpClient *http.Client
}

func NewHTTPClient(url string, staticHeaders map[string]string, authHeader AuthHeaderFunc) *HTTPClient {
	return &HTTPClient{
		url:        url,
		authHeader: authHeader,
		staticHdrs: staticHeaders,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	req, err := NewRequest(method, params)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.staticHdrs {
		httpReq.Header.Set(k, v)
	}
	if c.authHeader != nil {
		hdrs, err := c.authHeader(ctx)
		if err != nil {
			return nil, fmt.Errorf("http transport: derive auth headers: %w", err)
		}
		for k, v := range hdrs {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http transport: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http transport: read body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http transport: status %s: %s", resp.Status, string(raw))
	}

	var rpcResp Response
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, fmt.Errorf("http transport: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func (c *HTTPClient) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	raw, err := c.call(ctx, MethodToolsList, map[string]any{})
	if err != nil {
		return nil, err
	}
	return DecodeToolsList(raw)
}

func (c *HTTPClient) CallTool(ctx context.Context, name string, params map[string]any) (CallResult, error) {
	raw, err := c.call(ctx, MethodToolsCall, map[string]any{"name": name, "arguments": params})
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Raw: raw}, nil
}

func (c *HTTPClient) ListPrompts(ctx context.Context) ([]PromptDescriptor, error) {
	raw, err := c.call(ctx, MethodPromptsList, map[string]any{})
	if err != nil {
		return nil, err
	}
	return DecodePromptsList(raw)
}

func (c *HTTPClient) GetPrompt(ctx context.Context, name string, params map[string]any) (CallResult, error) {
	raw, err := c.call(ctx, MethodPromptsGet, map[string]any{"name": name, "arguments": params})
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Raw: raw}, nil
}

func (c *HTTPClient) ListResources(ctx context.Context) ([]ResourceDescriptor, error) {
	raw, err := c.call(ctx, MethodResourcesList, map[string]any{})
	if err != nil {
		return nil, err
	}
	return DecodeResourcesList(raw)
}

func (c *HTTPClient) ReadResource(ctx context.Context, uri string) (CallResult, error) {
	raw, err := c.call(ctx, MethodResourcesRead, map[string]any{"uri": uri})
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Raw: raw}, nil
}

// Ping issues the same low-cost tools/list probe the health checker already
// calls to refresh the Registry, per spec.md's "low-cost capability probe
// (list tools)" health-check protocol.
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.call(ctx, MethodToolsList, map[string]any{})
	return err
}

// Close is a no-op: the transport holds no persistent connection, only a
// *http.Client that is safe to drop.
func (c *HTTPClient) Close() error { return nil }
