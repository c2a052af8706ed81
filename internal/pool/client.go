// Package pool manages the lifecycle of backend MCP server sessions (spec
// §4.1): connect/disconnect/health-check across four transport variants,
// exposing a uniform Client once a Connection reaches state connected.
package pool

import (
	"context"

	"github.com/opencore/mcpgate/internal/pool/transport"
)

// ToolDescriptor, PromptDescriptor, ResourceDescriptor and CallResult are
// defined in transport (the package that actually decodes the wire
// response) and re-exported here so callers only need to import pool.
type (
	ToolDescriptor     = transport.ToolDescriptor
	PromptDescriptor   = transport.PromptDescriptor
	ResourceDescriptor = transport.ResourceDescriptor
	CallResult         = transport.CallResult
)

// Client is the uniform surface every transport exposes once connected,
// grounded on the MCP client contract surveyed in the example pack's own
// aggregator (ListTools/CallTool/ListPrompts/GetPrompt/ListResources/
// ReadResource/Ping), adapted to this gateway's opaque-JSON result type.
type Client interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, params map[string]any) (CallResult, error)

	ListPrompts(ctx context.Context) ([]PromptDescriptor, error)
	GetPrompt(ctx context.Context, name string, params map[string]any) (CallResult, error)

	ListResources(ctx context.Context) ([]ResourceDescriptor, error)
	ReadResource(ctx context.Context, uri string) (CallResult, error)

	// Ping is the low-cost liveness probe the health checker issues; every
	// transport implements it as tools/list and discards the result, per
	// spec.md's "low-cost capability probe (list tools)".
	Ping(ctx context.Context) error

	// Close releases transport resources. Errors are swallowed by callers
	// per spec §4.1's "all disconnect errors are swallowed".
	Close() error
}
