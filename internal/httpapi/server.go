package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opencore/mcpgate/internal/audit"
	"github.com/opencore/mcpgate/internal/events"
	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/pool"
	"github.com/opencore/mcpgate/internal/registry"
	"github.com/opencore/mcpgate/internal/router"
	"github.com/opencore/mcpgate/internal/storage"
	"github.com/opencore/mcpgate/internal/templates"
	"github.com/opencore/mcpgate/internal/tenant"
	"github.com/opencore/mcpgate/internal/workflow"
)

// Deps bundles every component NewRouter wires into the client-facing HTTP
// surface, assembled once in cmd/gateway/main.go.
type Deps struct {
	Log       *logging.Logger
	Store     storage.Store
	Pool      *pool.Pool
	Registry  *registry.Registry
	Router    *router.Router
	Engine    *workflow.Engine
	Templates *templates.Manager
	Tenants   *tenant.Manager
	Bus       *events.Bus
	Audit     *audit.Logger

	MasterAdminKey            string
	RateLimitDefaultPerMinute int64
	RateLimitDefaultPerDay    int64
}

// NewRouter builds the full gorilla/mux tree: middleware chain, Prometheus
// endpoint, and every handler group, the same assembly shape as the
// teacher's infrastructure/service.Runner builds its marble routers.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(d.Log))
	r.Use(RecoveryMiddleware(d.Log))

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", healthzHandler).Methods("GET")

	h := &handlers{deps: d}

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(AuthMiddleware(d.Log, d.Tenants, d.MasterAdminKey))

	registerServerRoutes(api, h)
	registerInvokeRoutes(api, h)
	registerWorkflowRoutes(api, h)
	registerTemplateRoutes(api, h)
	registerTenantRoutes(api, h)
	registerBudgetRoutes(api, h)
	registerWebhookRoutes(api, h)
	registerEventRoutes(api, h)
	registerAuditRoutes(api, h)

	return r
}

// handlers carries Deps into every handler method; grouped this way so
// each handler file can add methods without re-declaring the struct.
type handlers struct {
	deps Deps
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
