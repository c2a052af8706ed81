// Package router implements the public invoke/invokeBatch contract (spec
// §4.2), composing the Response Cache, Rate Limiter, Circuit Breaker, and
// Connection Pool in the fixed order the spec requires, then recording
// usage and emitting events on the outcome.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opencore/mcpgate/internal/cache"
	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/ids"
	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/pool"
	"github.com/opencore/mcpgate/internal/ratelimit"
	"github.com/opencore/mcpgate/internal/registry"
	"github.com/opencore/mcpgate/internal/resilience"
	"github.com/opencore/mcpgate/internal/storage"
	"github.com/opencore/mcpgate/internal/storage/model"
)

// EventPublisher is the narrow slice of the Event Fabric the Router needs.
type EventPublisher interface {
	Publish(kind string, payload any)
}

// CallSpec is one invocation request, whether arriving alone via Invoke or
// as part of an InvokeBatch slice.
type CallSpec struct {
	Kind        model.CapabilityKind // tool, prompt, or resource
	Name        string                // qualified or bare local name
	Params      map[string]any        // tool/prompt arguments; ignored for resource reads
	ResourceURI string                // set only when Kind == resource and Name lookup isn't used
	CallerKeyID string
	Cacheable   bool
	CacheTTL    time.Duration
}

// Result is what Invoke and each element of InvokeBatch return.
type Result struct {
	Raw      []byte
	Cached   bool
	ServerID string
	Duration time.Duration
	Err      error
}

// Router composes cache, rate limit, circuit, pool dispatch, and usage
// accounting, in that fixed order, per spec §4.2.
type Router struct {
	log        *logging.Logger
	registry   *registry.Registry
	pool       *pool.Pool
	cache      *cache.Cache
	limiter    *ratelimit.Limiter
	breakers   *resilience.Registry
	usage      storage.UsageStore
	events     EventPublisher
	callTimeout time.Duration
}

type Config struct {
	CallTimeout time.Duration
}

func New(log *logging.Logger, reg *registry.Registry, p *pool.Pool, c *cache.Cache, limiter *ratelimit.Limiter, breakers *resilience.Registry, usage storage.UsageStore, events EventPublisher, cfg Config) *Router {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Router{
		log: log, registry: reg, pool: p, cache: c, limiter: limiter,
		breakers: breakers, usage: usage, events: events, callTimeout: timeout,
	}
}

// Invoke serves one call through the full pipeline: cache-hit shortcut,
// circuit gate, rate gate, dispatch, then outcome accounting.
func (r *Router) Invoke(ctx context.Context, call CallSpec, policy ratelimit.Policy) Result {
	started := time.Now()

	entry, ok := r.registry.Find(call.Kind, call.Name)
	if !ok {
		return Result{Err: errs.NotFound(string(call.Kind), call.Name)}
	}

	// 1. Cache-hit shortcut: no rate or circuit charge on a hit.
	if call.Cacheable && r.cache != nil {
		if raw, hit, err := r.cache.Get(ctx, call.Kind, entry.ServerID, entry.QualifiedName, call.Params); err == nil && hit {
			return Result{Raw: raw, Cached: true, ServerID: entry.ServerID, Duration: time.Since(started)}
		}
	}

	// 2. Circuit gate.
	breaker := r.breakers.For(entry.ServerID)
	if ok, cerr := breaker.CanExecute(); !ok {
		return Result{Err: cerr, ServerID: entry.ServerID}
	}

	// 3. Rate gate.
	if r.limiter != nil && call.CallerKeyID != "" {
		if _, rerr := r.limiter.Allow(ctx, call.CallerKeyID, entry.ServerID, policy); rerr != nil {
			return Result{Err: rerr, ServerID: entry.ServerID}
		}
	}

	// 4. Dispatch.
	client, ok := r.pool.GetClient(entry.ServerID)
	if !ok {
		err := errs.ServerUnavailable(entry.ServerID)
		breaker.RecordFailure()
		r.recordUsage(ctx, call, entry, false, time.Since(started), 0, 0)
		return Result{Err: err, ServerID: entry.ServerID}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	raw, dispatchErr := r.dispatch(callCtx, call.Kind, client, entry, call.Params)
	duration := time.Since(started)

	// 5. Outcome accounting.
	if dispatchErr != nil {
		breaker.RecordFailure()
		r.recordUsage(ctx, call, entry, false, duration, 0, 0)
		if r.events != nil {
			r.events.Publish("tool.failed", map[string]any{
				"server_id": entry.ServerID, "name": entry.QualifiedName, "error": dispatchErr.Error(),
			})
		}
		return Result{Err: errs.Upstream("backend call failed", dispatchErr), ServerID: entry.ServerID, Duration: duration}
	}

	breaker.RecordSuccess()
	r.recordUsage(ctx, call, entry, true, duration, 0, 0)
	if call.Cacheable && r.cache != nil {
		ttl := call.CacheTTL
		_ = r.cache.Set(ctx, call.Kind, entry.ServerID, entry.QualifiedName, call.Params, raw, ttl)
	}
	if r.events != nil {
		r.events.Publish("tool.invoked", map[string]any{
			"server_id": entry.ServerID, "name": entry.QualifiedName, "duration_ms": duration.Milliseconds(),
		})
	}
	return Result{Raw: raw, ServerID: entry.ServerID, Duration: duration}
}

func (r *Router) dispatch(ctx context.Context, kind model.CapabilityKind, client pool.Client, entry model.CapabilityEntry, params map[string]any) ([]byte, error) {
	switch kind {
	case model.CapabilityTool:
		res, err := client.CallTool(ctx, entry.LocalName, params)
		return res.Raw, err
	case model.CapabilityPrompt:
		res, err := client.GetPrompt(ctx, entry.LocalName, params)
		return res.Raw, err
	case model.CapabilityResource:
		res, err := client.ReadResource(ctx, entry.URI)
		return res.Raw, err
	default:
		return nil, fmt.Errorf("router: unknown capability kind %q", kind)
	}
}

func (r *Router) recordUsage(ctx context.Context, call CallSpec, entry model.CapabilityEntry, success bool, duration time.Duration, tokens int64, cost float64) {
	if r.usage == nil || call.CallerKeyID == "" {
		return
	}
	rec := model.UsageRecord{
		ID: ids.New(), KeyID: call.CallerKeyID, ServerID: entry.ServerID, ToolName: entry.QualifiedName,
		Success: success, DurationMs: duration.Milliseconds(), TokensUsed: tokens, CostCredits: cost,
		CreatedAt: time.Now(),
	}
	if err := r.usage.Create(ctx, rec); err != nil {
		r.log.WithContext(ctx).WithError(err).Warn("failed to record usage")
	}
}

// InvokeBatch runs every call concurrently, preserving input order in the
// output slice; one element's failure never aborts the others (spec §4.2).
func (r *Router) InvokeBatch(ctx context.Context, calls []CallSpec, policy ratelimit.Policy) []Result {
	results := make([]Result, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call CallSpec) {
			defer wg.Done()
			results[i] = r.Invoke(ctx, call, policy)
		}(i, call)
	}
	wg.Wait()
	return results
}

// RemoveServer drops every piece of per-server routing state the Router
// composes once a ServerConfig's connection and registry entries are gone:
// its circuit breaker, its cached responses, and its rate-limit buckets
// (spec §3: ServerConfig deletion "cascades to connection, registry,
// rate-limit state, cache, circuit state").
func (r *Router) RemoveServer(ctx context.Context, serverID string) error {
	r.breakers.Remove(serverID)
	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, serverID, ""); err != nil {
			return err
		}
	}
	if r.limiter != nil {
		if err := r.limiter.ForgetServer(ctx, serverID); err != nil {
			return err
		}
	}
	return nil
}
