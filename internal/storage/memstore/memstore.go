// Package memstore is an in-memory implementation of storage.Store, adapted
// from the teacher's pkg/storage/memory: a single sync.RWMutex-guarded Store
// holding one map per entity, safe for concurrent use, intended for unit
// tests and local development rather than production durability.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/storage"
	"github.com/opencore/mcpgate/internal/storage/model"
)

// Store is the in-memory aggregate implementing storage.Store.
type Store struct {
	mu sync.RWMutex

	servers      map[string]model.ServerConfig
	capabilities map[model.CapabilityKind]map[string]model.CapabilityEntry
	rateLimits   map[string]model.RateLimitBucket
	circuits     map[string]model.CircuitState
	cache        map[string]model.CacheEntry
	workflows    map[string]model.Workflow
	executions   map[string]model.Execution
	execSteps    map[string]map[string]model.ExecutionStep // executionID -> stepID -> step
	budgetRules  map[string]model.BudgetRule
	budgetUsage  map[string]map[time.Time]model.BudgetUsage // ruleID -> periodStart -> usage
	webhookSubs  map[string]model.WebhookSubscription
	deliveries   map[string]model.WebhookDelivery
	detections   map[string]model.KeyExposureDetection
	tenants      map[string]model.Tenant
	apiKeysByID  map[string]model.APIKey
	apiKeysByHash map[string]string // hash -> id
	usage        []model.UsageRecord
	audit        []model.AuditEntry
	serverTemplates   map[string]model.ServerTemplate
	workflowTemplates map[string]model.WorkflowTemplate
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		servers:       make(map[string]model.ServerConfig),
		capabilities:  make(map[model.CapabilityKind]map[string]model.CapabilityEntry),
		rateLimits:    make(map[string]model.RateLimitBucket),
		circuits:      make(map[string]model.CircuitState),
		cache:         make(map[string]model.CacheEntry),
		workflows:     make(map[string]model.Workflow),
		executions:    make(map[string]model.Execution),
		execSteps:     make(map[string]map[string]model.ExecutionStep),
		budgetRules:   make(map[string]model.BudgetRule),
		budgetUsage:   make(map[string]map[time.Time]model.BudgetUsage),
		webhookSubs:   make(map[string]model.WebhookSubscription),
		deliveries:    make(map[string]model.WebhookDelivery),
		detections:    make(map[string]model.KeyExposureDetection),
		tenants:       make(map[string]model.Tenant),
		apiKeysByID:   make(map[string]model.APIKey),
		apiKeysByHash: make(map[string]string),
		serverTemplates:   make(map[string]model.ServerTemplate),
		workflowTemplates: make(map[string]model.WorkflowTemplate),
	}
}

func rlKey(keyID, serverID string) string { return keyID + "\x00" + serverID }

func (s *Store) Close() error { return nil }

func (s *Store) Servers() storage.ServerStore                  { return (*serverFacet)(s) }
func (s *Store) Capabilities() storage.CapabilityStore          { return (*capabilityFacet)(s) }
func (s *Store) RateLimits() storage.RateLimitStore             { return (*rateLimitFacet)(s) }
func (s *Store) CircuitStates() storage.CircuitStateStore       { return (*circuitFacet)(s) }
func (s *Store) Cache() storage.CacheStore                      { return (*cacheFacet)(s) }
func (s *Store) Workflows() storage.WorkflowStore               { return (*workflowFacet)(s) }
func (s *Store) Executions() storage.ExecutionStore             { return (*executionFacet)(s) }
func (s *Store) Budgets() storage.BudgetStore                   { return (*budgetFacet)(s) }
func (s *Store) Webhooks() storage.WebhookStore                 { return (*webhookFacet)(s) }
func (s *Store) SecretDetections() storage.SecretDetectionStore { return (*secretFacet)(s) }
func (s *Store) Tenants() storage.TenantStore                   { return (*tenantFacet)(s) }
func (s *Store) Usage() storage.UsageStore                      { return (*usageFacet)(s) }
func (s *Store) Audit() storage.AuditStore                      { return (*auditFacet)(s) }
func (s *Store) Templates() storage.TemplateStore                { return (*templateFacet)(s) }

// --- servers ---

type serverFacet Store

func (f *serverFacet) Create(ctx context.Context, c model.ServerConfig) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[c.ID] = c
	return nil
}

func (f *serverFacet) Get(ctx context.Context, id string) (model.ServerConfig, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.servers[id]
	if !ok {
		return model.ServerConfig{}, errs.NotFound("server", id)
	}
	return c, nil
}

func (f *serverFacet) List(ctx context.Context) ([]model.ServerConfig, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ServerConfig, 0, len(s.servers))
	for _, c := range s.servers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *serverFacet) Update(ctx context.Context, c model.ServerConfig) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[c.ID]; !ok {
		return errs.NotFound("server", c.ID)
	}
	s.servers[c.ID] = c
	return nil
}

func (f *serverFacet) Delete(ctx context.Context, id string) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[id]; !ok {
		return errs.NotFound("server", id)
	}
	delete(s.servers, id)
	return nil
}

// --- capabilities ---

type capabilityFacet Store

func (f *capabilityFacet) Upsert(ctx context.Context, c model.CapabilityEntry) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capabilities[c.Kind] == nil {
		s.capabilities[c.Kind] = make(map[string]model.CapabilityEntry)
	}
	s.capabilities[c.Kind][c.QualifiedName] = c
	return nil
}

func (f *capabilityFacet) DeleteByServer(ctx context.Context, serverID string) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byName := range s.capabilities {
		for name, c := range byName {
			if c.ServerID == serverID {
				delete(byName, name)
			}
		}
	}
	return nil
}

func (f *capabilityFacet) List(ctx context.Context, kind model.CapabilityKind) ([]model.CapabilityEntry, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CapabilityEntry, 0, len(s.capabilities[kind]))
	for _, c := range s.capabilities[kind] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName < out[j].QualifiedName })
	return out, nil
}

func (f *capabilityFacet) Get(ctx context.Context, kind model.CapabilityKind, qualifiedName string) (model.CapabilityEntry, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.capabilities[kind][qualifiedName]
	if !ok {
		return model.CapabilityEntry{}, errs.NotFound(string(kind), qualifiedName)
	}
	return c, nil
}

// --- rate limits ---

type rateLimitFacet Store

func (f *rateLimitFacet) GetOrInit(ctx context.Context, keyID, serverID string, now time.Time) (model.RateLimitBucket, error) {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rlKey(keyID, serverID)
	if b, ok := s.rateLimits[k]; ok {
		return b, nil
	}
	b := model.RateLimitBucket{
		KeyID: keyID, ServerID: serverID,
		MinuteResetAt: now.Truncate(time.Minute).Add(time.Minute),
		DayResetAt:    now.Truncate(24 * time.Hour).Add(24 * time.Hour),
	}
	s.rateLimits[k] = b
	return b, nil
}

func (f *rateLimitFacet) Increment(ctx context.Context, keyID, serverID string, now time.Time) (model.RateLimitBucket, error) {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rlKey(keyID, serverID)
	b, ok := s.rateLimits[k]
	if !ok {
		b = model.RateLimitBucket{KeyID: keyID, ServerID: serverID}
	}
	if !b.MinuteResetAt.After(now) {
		b.MinuteCount = 0
		b.MinuteResetAt = now.Truncate(time.Minute).Add(time.Minute)
	}
	if !b.DayResetAt.After(now) {
		b.DayCount = 0
		b.DayResetAt = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
	b.MinuteCount++
	b.DayCount++
	s.rateLimits[k] = b
	return b, nil
}

func (f *rateLimitFacet) Release(ctx context.Context, keyID, serverID string, minuteResetAt, dayResetAt time.Time) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rlKey(keyID, serverID)
	b, ok := s.rateLimits[k]
	if !ok {
		return nil
	}
	if b.MinuteResetAt.Equal(minuteResetAt) && b.MinuteCount > 0 {
		b.MinuteCount--
	}
	if b.DayResetAt.Equal(dayResetAt) && b.DayCount > 0 {
		b.DayCount--
	}
	s.rateLimits[k] = b
	return nil
}

func (f *rateLimitFacet) DeleteByServer(ctx context.Context, serverID string) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, b := range s.rateLimits {
		if b.ServerID == serverID {
			delete(s.rateLimits, k)
		}
	}
	return nil
}

// --- circuit states ---

type circuitFacet Store

func (f *circuitFacet) Upsert(ctx context.Context, c model.CircuitState) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.circuits[c.ServerID] = c
	return nil
}

func (f *circuitFacet) List(ctx context.Context) ([]model.CircuitState, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CircuitState, 0, len(s.circuits))
	for _, c := range s.circuits {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out, nil
}

// --- cache ---

type cacheFacet Store

func (f *cacheFacet) Get(ctx context.Context, key string, now time.Time) (model.CacheEntry, bool, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.cache[key]
	if !ok || !e.ExpiresAt.After(now) {
		return model.CacheEntry{}, false, nil
	}
	return e, true, nil
}

func (f *cacheFacet) Put(ctx context.Context, e model.CacheEntry) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	e.HitCount = 0
	s.cache[e.Key] = e
	return nil
}

func (f *cacheFacet) RecordHit(ctx context.Context, key string, at time.Time) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache[key]
	if !ok {
		return nil
	}
	e.HitCount++
	e.LastHitAt = at
	s.cache[key] = e
	return nil
}

func (f *cacheFacet) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, e := range s.cache {
		if !e.ExpiresAt.After(now) {
			delete(s.cache, k)
			n++
		}
	}
	return n, nil
}

func (f *cacheFacet) InvalidateByServer(ctx context.Context, serverID string) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.cache {
		if e.ServerID == serverID {
			delete(s.cache, k)
		}
	}
	return nil
}

func (f *cacheFacet) InvalidateAll(ctx context.Context) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]model.CacheEntry)
	return nil
}

// --- workflows ---

type workflowFacet Store

func (f *workflowFacet) Create(ctx context.Context, w model.Workflow) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = w
	return nil
}

func (f *workflowFacet) Get(ctx context.Context, id string) (model.Workflow, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return model.Workflow{}, errs.NotFound("workflow", id)
	}
	return w, nil
}

func (f *workflowFacet) List(ctx context.Context) ([]model.Workflow, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *workflowFacet) Update(ctx context.Context, w model.Workflow) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[w.ID]; !ok {
		return errs.NotFound("workflow", w.ID)
	}
	s.workflows[w.ID] = w
	return nil
}

func (f *workflowFacet) Delete(ctx context.Context, id string) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return errs.NotFound("workflow", id)
	}
	delete(s.workflows, id)
	return nil
}

// --- executions ---

type executionFacet Store

func (f *executionFacet) CreateExecution(ctx context.Context, e model.Execution) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[e.ID] = e
	return nil
}

func (f *executionFacet) UpdateExecution(ctx context.Context, e model.Execution) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[e.ID]; !ok {
		return errs.NotFound("execution", e.ID)
	}
	s.executions[e.ID] = e
	return nil
}

func (f *executionFacet) GetExecution(ctx context.Context, id string) (model.Execution, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.executions[id]
	if !ok {
		return model.Execution{}, errs.NotFound("execution", id)
	}
	return e, nil
}

func (f *executionFacet) ListExecutions(ctx context.Context, workflowID string) ([]model.Execution, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Execution, 0)
	for _, e := range s.executions {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (f *executionFacet) PutSteps(ctx context.Context, steps []model.ExecutionStep) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range steps {
		if s.execSteps[st.ExecutionID] == nil {
			s.execSteps[st.ExecutionID] = make(map[string]model.ExecutionStep)
		}
		s.execSteps[st.ExecutionID][st.ID] = st
	}
	return nil
}

func (f *executionFacet) ListSteps(ctx context.Context, executionID string) ([]model.ExecutionStep, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ExecutionStep, 0, len(s.execSteps[executionID]))
	for _, st := range s.execSteps[executionID] {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// --- budgets ---

type budgetFacet Store

func (f *budgetFacet) CreateRule(ctx context.Context, r model.BudgetRule) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgetRules[r.ID] = r
	return nil
}

func (f *budgetFacet) GetRule(ctx context.Context, id string) (model.BudgetRule, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.budgetRules[id]
	if !ok {
		return model.BudgetRule{}, errs.NotFound("budget_rule", id)
	}
	return r, nil
}

func (f *budgetFacet) ListRules(ctx context.Context, scope model.BudgetScope, scopeID string) ([]model.BudgetRule, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.BudgetRule, 0)
	for _, r := range s.budgetRules {
		if scope == "" || (r.Scope == scope && r.ScopeID == scopeID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *budgetFacet) DeleteRule(ctx context.Context, id string) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgetRules[id]; !ok {
		return errs.NotFound("budget_rule", id)
	}
	delete(s.budgetRules, id)
	return nil
}

func (f *budgetFacet) GetOrInitUsage(ctx context.Context, ruleID string, periodStart, periodEnd time.Time) (model.BudgetUsage, error) {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budgetUsage[ruleID] == nil {
		s.budgetUsage[ruleID] = make(map[time.Time]model.BudgetUsage)
	}
	if u, ok := s.budgetUsage[ruleID][periodStart]; ok {
		return u, nil
	}
	u := model.BudgetUsage{RuleID: ruleID, PeriodStart: periodStart, PeriodEnd: periodEnd}
	s.budgetUsage[ruleID][periodStart] = u
	return u, nil
}

func (f *budgetFacet) AddUsage(ctx context.Context, ruleID string, periodStart time.Time, delta float64) (model.BudgetUsage, error) {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budgetUsage[ruleID] == nil {
		s.budgetUsage[ruleID] = make(map[time.Time]model.BudgetUsage)
	}
	u := s.budgetUsage[ruleID][periodStart]
	u.RuleID = ruleID
	u.PeriodStart = periodStart
	u.Used += delta
	s.budgetUsage[ruleID][periodStart] = u
	return u, nil
}

func (f *budgetFacet) DeleteUsageOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for ruleID, periods := range s.budgetUsage {
		for periodStart, u := range periods {
			if u.PeriodEnd.Before(cutoff) {
				delete(periods, periodStart)
				n++
			}
		}
		if len(periods) == 0 {
			delete(s.budgetUsage, ruleID)
		}
	}
	return n, nil
}

// --- webhooks ---

type webhookFacet Store

func (f *webhookFacet) CreateSubscription(ctx context.Context, sub model.WebhookSubscription) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookSubs[sub.ID] = sub
	return nil
}

func (f *webhookFacet) GetSubscription(ctx context.Context, id string) (model.WebhookSubscription, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.webhookSubs[id]
	if !ok {
		return model.WebhookSubscription{}, errs.NotFound("webhook_subscription", id)
	}
	return sub, nil
}

func (f *webhookFacet) ListSubscriptions(ctx context.Context, eventKind string) ([]model.WebhookSubscription, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WebhookSubscription, 0)
	for _, sub := range s.webhookSubs {
		if !sub.Enabled {
			continue
		}
		if eventKind == "" {
			out = append(out, sub)
			continue
		}
		for _, k := range sub.EventKinds {
			if k == eventKind {
				out = append(out, sub)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *webhookFacet) DeleteSubscription(ctx context.Context, id string) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.webhookSubs[id]; !ok {
		return errs.NotFound("webhook_subscription", id)
	}
	delete(s.webhookSubs, id)
	return nil
}

func (f *webhookFacet) CreateDelivery(ctx context.Context, d model.WebhookDelivery) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[d.ID] = d
	return nil
}

func (f *webhookFacet) UpdateDelivery(ctx context.Context, d model.WebhookDelivery) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[d.ID]; !ok {
		return errs.NotFound("webhook_delivery", d.ID)
	}
	s.deliveries[d.ID] = d
	return nil
}

func (f *webhookFacet) ListPendingDeliveries(ctx context.Context, limit int) ([]model.WebhookDelivery, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WebhookDelivery, 0)
	for _, d := range s.deliveries {
		if d.Status == model.DeliveryPending {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *webhookFacet) ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]model.WebhookDelivery, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WebhookDelivery, 0)
	for _, d := range s.deliveries {
		if d.SubscriptionID == subscriptionID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *webhookFacet) DeleteDeliveriesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, d := range s.deliveries {
		if d.Status != model.DeliveryPending && d.CreatedAt.Before(cutoff) {
			delete(s.deliveries, id)
			n++
		}
	}
	return n, nil
}

// --- secret detections ---

type secretFacet Store

func (f *secretFacet) Create(ctx context.Context, d model.KeyExposureDetection) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections[d.ID] = d
	return nil
}

func (f *secretFacet) List(ctx context.Context, resolved *bool) ([]model.KeyExposureDetection, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.KeyExposureDetection, 0)
	for _, d := range s.detections {
		if resolved == nil || d.Resolved == *resolved {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *secretFacet) Resolve(ctx context.Context, id, note string) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.detections[id]
	if !ok {
		return errs.NotFound("key_exposure_detection", id)
	}
	d.Resolved = true
	d.ResolutionNote = note
	s.detections[id] = d
	return nil
}

// --- tenants ---

type tenantFacet Store

func (f *tenantFacet) CreateTenant(ctx context.Context, t model.Tenant) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
	return nil
}

func (f *tenantFacet) GetTenant(ctx context.Context, id string) (model.Tenant, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return model.Tenant{}, errs.NotFound("tenant", id)
	}
	return t, nil
}

func (f *tenantFacet) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *tenantFacet) CreateAPIKey(ctx context.Context, k model.APIKey) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeysByID[k.ID] = k
	s.apiKeysByHash[k.HashedKey] = k.ID
	return nil
}

func (f *tenantFacet) GetAPIKeyByHash(ctx context.Context, hashedKey string) (model.APIKey, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.apiKeysByHash[hashedKey]
	if !ok {
		return model.APIKey{}, errs.Unauthenticated("unknown api key")
	}
	return s.apiKeysByID[id], nil
}

func (f *tenantFacet) ListAPIKeys(ctx context.Context, tenantID string) ([]model.APIKey, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.APIKey, 0)
	for _, k := range s.apiKeysByID {
		if k.TenantID == tenantID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *tenantFacet) RevokeAPIKey(ctx context.Context, id string) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeysByID[id]
	if !ok {
		return errs.NotFound("api_key", id)
	}
	k.Revoked = true
	s.apiKeysByID[id] = k
	return nil
}

// --- usage ---

type usageFacet Store

func (f *usageFacet) Create(ctx context.Context, u model.UsageRecord) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, u)
	return nil
}

func (f *usageFacet) ListByKey(ctx context.Context, keyID string, since time.Time) ([]model.UsageRecord, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.UsageRecord, 0)
	for _, u := range s.usage {
		if u.KeyID == keyID && !u.CreatedAt.Before(since) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *usageFacet) SumCostByKey(ctx context.Context, keyID string, since time.Time) (float64, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, u := range s.usage {
		if u.KeyID == keyID && !u.CreatedAt.Before(since) {
			total += u.CostCredits
		}
	}
	return total, nil
}

// --- audit ---

type auditFacet Store

func (f *auditFacet) Create(ctx context.Context, a model.AuditEntry) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, a)
	return nil
}

func (f *auditFacet) List(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AuditEntry, len(s.audit))
	copy(out, s.audit)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- templates ---

type templateFacet Store

func (f *templateFacet) CreateServerTemplate(ctx context.Context, t model.ServerTemplate) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverTemplates[t.ID] = t
	return nil
}

func (f *templateFacet) GetServerTemplate(ctx context.Context, id string) (model.ServerTemplate, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.serverTemplates[id]
	if !ok {
		return model.ServerTemplate{}, errs.NotFound("server_template", id)
	}
	return t, nil
}

func (f *templateFacet) ListServerTemplates(ctx context.Context) ([]model.ServerTemplate, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ServerTemplate, 0, len(s.serverTemplates))
	for _, t := range s.serverTemplates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *templateFacet) UpdateServerTemplate(ctx context.Context, t model.ServerTemplate) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.serverTemplates[t.ID]; !ok {
		return errs.NotFound("server_template", t.ID)
	}
	s.serverTemplates[t.ID] = t
	return nil
}

func (f *templateFacet) DeleteServerTemplate(ctx context.Context, id string) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.serverTemplates[id]; !ok {
		return errs.NotFound("server_template", id)
	}
	delete(s.serverTemplates, id)
	return nil
}

func (f *templateFacet) CreateWorkflowTemplate(ctx context.Context, t model.WorkflowTemplate) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflowTemplates[t.ID] = t
	return nil
}

func (f *templateFacet) GetWorkflowTemplate(ctx context.Context, id string) (model.WorkflowTemplate, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.workflowTemplates[id]
	if !ok {
		return model.WorkflowTemplate{}, errs.NotFound("workflow_template", id)
	}
	return t, nil
}

func (f *templateFacet) ListWorkflowTemplates(ctx context.Context) ([]model.WorkflowTemplate, error) {
	s := (*Store)(f)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WorkflowTemplate, 0, len(s.workflowTemplates))
	for _, t := range s.workflowTemplates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *templateFacet) UpdateWorkflowTemplate(ctx context.Context, t model.WorkflowTemplate) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflowTemplates[t.ID]; !ok {
		return errs.NotFound("workflow_template", t.ID)
	}
	s.workflowTemplates[t.ID] = t
	return nil
}

func (f *templateFacet) DeleteWorkflowTemplate(ctx context.Context, id string) error {
	s := (*Store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflowTemplates[id]; !ok {
		return errs.NotFound("workflow_template", id)
	}
	delete(s.workflowTemplates, id)
	return nil
}
