package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// StdioClient owns a long-lived child process speaking line-delimited
// JSON-RPC 2.0 over its stdin/stdout. Auth is expressed only through the
// child's environment (spec §4.1); spawn is non-blocking and this client
// owns the pipes for the process lifetime.
type StdioClient struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu      sync.Mutex
	pending map[int64]chan Response
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// DialStdio spawns command with args/env and starts the reader loop. It does
// not block on the child's readiness; the first RPC call surfaces any
// startup failure.
func DialStdio(ctx context.Context, command string, args []string, env map[string]string) (*StdioClient, error) {
	cmd := exec.Command(command, args...)
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio transport: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("stdio transport: start: %w", err)
	}

	c := &StdioClient{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  bufio.NewReader(stdout),
		pending: make(map[int64]chan Response),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *StdioClient) readLoop() {
	for {
		line, err := c.stdout.ReadBytes('\n')
		if len(line) > 0 {
			var resp Response
			if jsonErr := json.Unmarshal(line, &resp); jsonErr == nil {
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
		if err != nil {
			c.failAllPending(err)
			return
		}
	}
}

func (c *StdioClient) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- Response{ID: id, Error: &RPCError{Code: -1, Message: err.Error()}}
		close(ch)
	}
	c.pending = make(map[int64]chan Response)
}

func (c *StdioClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
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
	raw = append(raw, '\n')

	c.writeMu.Lock()
	_, werr := c.stdin.Write(raw)
	c.writeMu.Unlock()
	if werr != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return nil, fmt.Errorf("stdio transport: write: %w", werr)
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

func (c *StdioClient) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	raw, err := c.call(ctx, MethodToolsList, map[string]any{})
	if err != nil {
		return nil, err
	}
	return DecodeToolsList(raw)
}

func (c *StdioClient) CallTool(ctx context.Context, name string, params map[string]any) (CallResult, error) {
	raw, err := c.call(ctx, MethodToolsCall, map[string]any{"name": name, "arguments": params})
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Raw: raw}, nil
}

func (c *StdioClient) ListPrompts(ctx context.Context) ([]PromptDescriptor, error) {
	raw, err := c.call(ctx, MethodPromptsList, map[string]any{})
	if err != nil {
		return nil, err
	}
	return DecodePromptsList(raw)
}

func (c *StdioClient) GetPrompt(ctx context.Context, name string, params map[string]any) (CallResult, error) {
	raw, err := c.call(ctx, MethodPromptsGet, map[string]any{"name": name, "arguments": params})
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Raw: raw}, nil
}

func (c *StdioClient) ListResources(ctx context.Context) ([]ResourceDescriptor, error) {
	raw, err := c.call(ctx, MethodResourcesList, map[string]any{})
	if err != nil {
		return nil, err
	}
	return DecodeResourcesList(raw)
}

func (c *StdioClient) ReadResource(ctx context.Context, uri string) (CallResult, error) {
	raw, err := c.call(ctx, MethodResourcesRead, map[string]any{"uri": uri})
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Raw: raw}, nil
}

// Ping issues the same low-cost tools/list probe the health checker already
// calls to refresh the Registry, per spec.md's "low-cost capability probe
// (list tools)" health-check protocol.
func (c *StdioClient) Ping(ctx context.Context) error {
	_, err := c.call(ctx, MethodToolsList, map[string]any{})
	return err
}

func (c *StdioClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.stdin.Close()
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		err = c.cmd.Wait()
	})
	return err
}
