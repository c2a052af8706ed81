package postgres

import (
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/opencore/mcpgate/internal/storage"
)

// Store assembles every table-specific store over one *sqlx.DB, implementing
// storage.Store end to end.
type Store struct {
	db *sqlx.DB

	servers           *ServerStore
	capabilities      *CapabilityStore
	rateLimits        *RateLimitStore
	circuits          *CircuitStateStore
	cache             *CacheStore
	workflows         *WorkflowStore
	executions        *ExecutionStore
	budgets           *BudgetStore
	webhooks          *WebhookStore
	secretDetections  *SecretDetectionStore
	tenants           *TenantStore
	usage             *UsageStore
	audit             *AuditStore
	templates         *TemplateStore
}

// Open connects to Postgres via lib/pq and wires every sub-store.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wires every sub-store over an already-open *sqlx.DB.
func New(db *sqlx.DB) *Store {
	base := NewBaseStore(db)
	return &Store{
		db:               db,
		servers:          NewServerStore(base),
		capabilities:     NewCapabilityStore(base),
		rateLimits:       NewRateLimitStore(base),
		circuits:         NewCircuitStateStore(base),
		cache:            NewCacheStore(base),
		workflows:        NewWorkflowStore(base),
		executions:       NewExecutionStore(base),
		budgets:          NewBudgetStore(base),
		webhooks:         NewWebhookStore(base),
		secretDetections: NewSecretDetectionStore(base),
		tenants:          NewTenantStore(base),
		usage:            NewUsageStore(base),
		audit:            NewAuditStore(base),
		templates:        NewTemplateStore(base),
	}
}

func (s *Store) Servers() storage.ServerStore                   { return s.servers }
func (s *Store) Capabilities() storage.CapabilityStore           { return s.capabilities }
func (s *Store) RateLimits() storage.RateLimitStore              { return s.rateLimits }
func (s *Store) CircuitStates() storage.CircuitStateStore        { return s.circuits }
func (s *Store) Cache() storage.CacheStore                       { return s.cache }
func (s *Store) Workflows() storage.WorkflowStore                { return s.workflows }
func (s *Store) Executions() storage.ExecutionStore              { return s.executions }
func (s *Store) Budgets() storage.BudgetStore                    { return s.budgets }
func (s *Store) Webhooks() storage.WebhookStore                  { return s.webhooks }
func (s *Store) SecretDetections() storage.SecretDetectionStore  { return s.secretDetections }
func (s *Store) Tenants() storage.TenantStore                    { return s.tenants }
func (s *Store) Usage() storage.UsageStore                       { return s.usage }
func (s *Store) Audit() storage.AuditStore                       { return s.audit }
func (s *Store) Templates() storage.TemplateStore                { return s.templates }

func (s *Store) Close() error { return s.db.Close() }
