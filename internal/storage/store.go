// Package storage declares the persistence interfaces every stateful
// component (pool, registry, rate limiter, cache, workflow engine, events,
// tenant, templates, audit, usage) depends on, following the teacher's
// pkg/storage convention of interface-first stores with a Postgres
// implementation (internal/storage/postgres) and an in-memory fake
// (internal/storage/memstore) for unit tests.
package storage

import (
	"context"
	"time"

	"github.com/opencore/mcpgate/internal/storage/model"
)

// ServerStore persists ServerConfig rows (spec §3, §6 admin CRUD).
type ServerStore interface {
	Create(ctx context.Context, s model.ServerConfig) error
	Get(ctx context.Context, id string) (model.ServerConfig, error)
	List(ctx context.Context) ([]model.ServerConfig, error)
	Update(ctx context.Context, s model.ServerConfig) error
	Delete(ctx context.Context, id string) error
}

// CapabilityStore persists the Registry's tool/prompt/resource entries.
type CapabilityStore interface {
	Upsert(ctx context.Context, c model.CapabilityEntry) error
	DeleteByServer(ctx context.Context, serverID string) error
	List(ctx context.Context, kind model.CapabilityKind) ([]model.CapabilityEntry, error)
	Get(ctx context.Context, kind model.CapabilityKind, qualifiedName string) (model.CapabilityEntry, error)
}

// RateLimitStore persists the durable two-window counters (spec §4.4).
type RateLimitStore interface {
	// GetOrInit returns the bucket for (keyID, serverID), creating it with
	// fresh windows anchored at now if absent.
	GetOrInit(ctx context.Context, keyID, serverID string, now time.Time) (model.RateLimitBucket, error)
	// Increment atomically rolls expired windows and increments both
	// counters, returning the post-increment bucket.
	Increment(ctx context.Context, keyID, serverID string, now time.Time) (model.RateLimitBucket, error)
	// Release compensates a charge that Increment accepted but the caller
	// decided to reject after inspecting the post-increment counts (the
	// policy cap lives with the caller, not the bucket row). Best-effort: a
	// window rollover between Increment and Release means there is nothing
	// live to compensate, which Release treats as a no-op rather than an error.
	Release(ctx context.Context, keyID, serverID string, minuteResetAt, dayResetAt time.Time) error
	// DeleteByServer removes every bucket row for serverID across all keys,
	// so a deleted ServerConfig leaves no orphaned rate-limit state
	// (spec §3: ServerConfig deletion cascades to rate-limit state).
	DeleteByServer(ctx context.Context, serverID string) error
}

// CircuitStateStore persists circuit breaker snapshots for status queries
// and restart recovery; the authoritative live state lives in-process.
type CircuitStateStore interface {
	Upsert(ctx context.Context, c model.CircuitState) error
	List(ctx context.Context) ([]model.CircuitState, error)
}

// CacheStore persists the durable tier of the Response Cache.
type CacheStore interface {
	Get(ctx context.Context, key string, now time.Time) (model.CacheEntry, bool, error)
	Put(ctx context.Context, entry model.CacheEntry) error
	RecordHit(ctx context.Context, key string, at time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	InvalidateByServer(ctx context.Context, serverID string) error
	InvalidateAll(ctx context.Context) error
}

// WorkflowStore persists Workflow definitions.
type WorkflowStore interface {
	Create(ctx context.Context, w model.Workflow) error
	Get(ctx context.Context, id string) (model.Workflow, error)
	List(ctx context.Context) ([]model.Workflow, error)
	Update(ctx context.Context, w model.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionStore persists workflow Executions and their ExecutionSteps,
// batched the way the teacher batches step state (spec §4.3's durable,
// resumable execution record).
type ExecutionStore interface {
	CreateExecution(ctx context.Context, e model.Execution) error
	UpdateExecution(ctx context.Context, e model.Execution) error
	GetExecution(ctx context.Context, id string) (model.Execution, error)
	ListExecutions(ctx context.Context, workflowID string) ([]model.Execution, error)

	// PutSteps upserts a batch of ExecutionStep rows in one round trip.
	PutSteps(ctx context.Context, steps []model.ExecutionStep) error
	ListSteps(ctx context.Context, executionID string) ([]model.ExecutionStep, error)
}

// BudgetStore persists BudgetRule configuration and accrued BudgetUsage.
type BudgetStore interface {
	CreateRule(ctx context.Context, r model.BudgetRule) error
	GetRule(ctx context.Context, id string) (model.BudgetRule, error)
	ListRules(ctx context.Context, scope model.BudgetScope, scopeID string) ([]model.BudgetRule, error)
	DeleteRule(ctx context.Context, id string) error

	// GetOrInitUsage returns (creating if absent) the usage row covering now.
	GetOrInitUsage(ctx context.Context, ruleID string, periodStart, periodEnd time.Time) (model.BudgetUsage, error)
	// AddUsage atomically increments Used and returns the post-increment row.
	AddUsage(ctx context.Context, ruleID string, periodStart time.Time, delta float64) (model.BudgetUsage, error)
	// DeleteUsageOlderThan prunes BudgetUsage rows whose period ended before
	// cutoff, returning the number of rows removed.
	DeleteUsageOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// WebhookStore persists WebhookSubscriptions and their delivery attempts.
type WebhookStore interface {
	CreateSubscription(ctx context.Context, s model.WebhookSubscription) error
	GetSubscription(ctx context.Context, id string) (model.WebhookSubscription, error)
	ListSubscriptions(ctx context.Context, eventKind string) ([]model.WebhookSubscription, error)
	DeleteSubscription(ctx context.Context, id string) error

	CreateDelivery(ctx context.Context, d model.WebhookDelivery) error
	UpdateDelivery(ctx context.Context, d model.WebhookDelivery) error
	ListPendingDeliveries(ctx context.Context, limit int) ([]model.WebhookDelivery, error)
	// ListDeliveries returns subscriptionID's delivery attempts, most recent
	// first, for the admin deliveries view (spec §6: webhook subscription
	// management).
	ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]model.WebhookDelivery, error)
	DeleteDeliveriesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SecretDetectionStore persists Secret Scanner findings.
type SecretDetectionStore interface {
	Create(ctx context.Context, d model.KeyExposureDetection) error
	List(ctx context.Context, resolved *bool) ([]model.KeyExposureDetection, error)
	Resolve(ctx context.Context, id, note string) error
}

// TenantStore persists Tenants and APIKeys.
type TenantStore interface {
	CreateTenant(ctx context.Context, t model.Tenant) error
	GetTenant(ctx context.Context, id string) (model.Tenant, error)
	ListTenants(ctx context.Context) ([]model.Tenant, error)

	CreateAPIKey(ctx context.Context, k model.APIKey) error
	GetAPIKeyByHash(ctx context.Context, hashedKey string) (model.APIKey, error)
	ListAPIKeys(ctx context.Context, tenantID string) ([]model.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// UsageStore persists per-invocation UsageRecords.
type UsageStore interface {
	Create(ctx context.Context, u model.UsageRecord) error
	ListByKey(ctx context.Context, keyID string, since time.Time) ([]model.UsageRecord, error)
	SumCostByKey(ctx context.Context, keyID string, since time.Time) (float64, error)
}

// AuditStore persists the admin audit log.
type AuditStore interface {
	Create(ctx context.Context, a model.AuditEntry) error
	List(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

// TemplateStore persists ServerTemplates and WorkflowTemplates (spec §6's
// template catalog, supplemented per SPEC_FULL.md §12).
type TemplateStore interface {
	CreateServerTemplate(ctx context.Context, t model.ServerTemplate) error
	GetServerTemplate(ctx context.Context, id string) (model.ServerTemplate, error)
	ListServerTemplates(ctx context.Context) ([]model.ServerTemplate, error)
	UpdateServerTemplate(ctx context.Context, t model.ServerTemplate) error
	DeleteServerTemplate(ctx context.Context, id string) error

	CreateWorkflowTemplate(ctx context.Context, t model.WorkflowTemplate) error
	GetWorkflowTemplate(ctx context.Context, id string) (model.WorkflowTemplate, error)
	ListWorkflowTemplates(ctx context.Context) ([]model.WorkflowTemplate, error)
	UpdateWorkflowTemplate(ctx context.Context, t model.WorkflowTemplate) error
	DeleteWorkflowTemplate(ctx context.Context, id string) error
}

// Store aggregates every sub-store the gateway depends on, assembled once at
// startup and passed by interface to each component's constructor.
type Store interface {
	Servers() ServerStore
	Capabilities() CapabilityStore
	RateLimits() RateLimitStore
	CircuitStates() CircuitStateStore
	Cache() CacheStore
	Workflows() WorkflowStore
	Executions() ExecutionStore
	Budgets() BudgetStore
	Webhooks() WebhookStore
	SecretDetections() SecretDetectionStore
	Tenants() TenantStore
	Usage() UsageStore
	Audit() AuditStore
	Templates() TemplateStore

	// Close releases the underlying connection resources.
	Close() error
}
