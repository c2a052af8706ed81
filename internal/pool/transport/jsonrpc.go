// Package transport implements the four backend transport variants the
// Connection Pool dials: stdio (child process), sse/http (request-stream),
// and websocket (persistent bidirectional stream), all framed as JSON-RPC
// 2.0 over whichever byte stream the variant provides.
package transport

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// Standard MCP method names; the exact wire protocol is a Pool-internal
// implementation detail, not part of the gateway's own public contract.
const (
	MethodToolsList     = "tools/list"
	MethodToolsCall     = "tools/call"
	MethodPromptsList   = "prompts/list"
	MethodPromptsGet    = "prompts/get"
	MethodResourcesList = "resources/list"
	MethodResourcesRead = "resources/read"
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

var idCounter int64

// NextID mints a process-wide unique JSON-RPC request id.
func NextID() int64 { return atomic.AddInt64(&idCounter, 1) }

// NewRequest builds a Request for method with params marshaled to JSON.
func NewRequest(method string, params any) (Request, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Request{}, err
	}
	return Request{JSONRPC: "2.0", ID: NextID(), Method: method, Params: raw}, nil
}

// ToolDescriptor, PromptDescriptor and ResourceDescriptor are what a
// backend reports when the Registry lists its capabilities post-connect.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema []byte
}

type PromptDescriptor struct {
	Name        string
	Description string
}

type ResourceDescriptor struct {
	URI         string
	Name        string
	Description string
}

// CallResult is the opaque backend response to a tool/prompt/resource call,
// carried as raw JSON so the Router and Workflow Engine can inspect
// provider-specific usage metadata (token counts) without this package
// needing to know every backend's response shape.
type CallResult struct {
	Raw []byte
}

type toolsListResult struct {
	Tools []toolJSON `json:"tools"`
}

type toolJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

func (r toolsListResult) descriptors() []ToolDescriptor {
	out := make([]ToolDescriptor, len(r.Tools))
	for i, t := range r.Tools {
		out[i] = ToolDescriptor{Name: t.Name, Description: t.Description, InputSchema: []byte(t.InputSchema)}
	}
	return out
}

type promptsListResult struct {
	Prompts []promptJSON `json:"prompts"`
}

type promptJSON struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r promptsListResult) descriptors() []PromptDescriptor {
	out := make([]PromptDescriptor, len(r.Prompts))
	for i, p := range r.Prompts {
		out[i] = PromptDescriptor{Name: p.Name, Description: p.Description}
	}
	return out
}

type resourcesListResult struct {
	Resources []resourceJSON `json:"resources"`
}

type resourceJSON struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r resourcesListResult) descriptors() []ResourceDescriptor {
	out := make([]ResourceDescriptor, len(r.Resources))
	for i, res := range r.Resources {
		out[i] = ResourceDescriptor{URI: res.URI, Name: res.Name, Description: res.Description}
	}
	return out
}

// DecodeToolsList decodes a tools/list JSON-RPC result.
func DecodeToolsList(raw json.RawMessage) ([]ToolDescriptor, error) {
	var r toolsListResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return r.descriptors(), nil
}

// DecodePromptsList decodes a prompts/list JSON-RPC result.
func DecodePromptsList(raw json.RawMessage) ([]PromptDescriptor, error) {
	var r promptsListResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return r.descriptors(), nil
}

// DecodeResourcesList decodes a resources/list JSON-RPC result.
func DecodeResourcesList(raw json.RawMessage) ([]ResourceDescriptor, error) {
	var r resourcesListResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return r.descriptors(), nil
}
