// Command gateway assembles and serves the MCP Gateway: connection pool,
// tool/prompt registry, router, workflow engine, and event fabric behind one
// HTTP surface, the same assemble-then-serve shape as the teacher's
// cmd/appserver main.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opencore/mcpgate/internal/audit"
	"github.com/opencore/mcpgate/internal/cache"
	"github.com/opencore/mcpgate/internal/config"
	"github.com/opencore/mcpgate/internal/events"
	"github.com/opencore/mcpgate/internal/httpapi"
	"github.com/opencore/mcpgate/internal/ids"
	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/obsmetrics"
	"github.com/opencore/mcpgate/internal/pool"
	"github.com/opencore/mcpgate/internal/pool/transport"
	"github.com/opencore/mcpgate/internal/ratelfront"
	"github.com/opencore/mcpgate/internal/ratelimit"
	"github.com/opencore/mcpgate/internal/registry"
	"github.com/opencore/mcpgate/internal/resilience"
	"github.com/opencore/mcpgate/internal/router"
	"github.com/opencore/mcpgate/internal/secretscan"
	"github.com/opencore/mcpgate/internal/storage"
	"github.com/opencore/mcpgate/internal/storage/memstore"
	"github.com/opencore/mcpgate/internal/storage/model"
	"github.com/opencore/mcpgate/internal/storage/postgres"
	"github.com/opencore/mcpgate/internal/templates"
	"github.com/opencore/mcpgate/internal/tenant"
	"github.com/opencore/mcpgate/internal/workflow"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config or :8080)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides DB_PATH; use \"memory\" for in-memory storage)")
	serversFile := flag.String("servers", "", "path to a JSON file seeding/reconciling the server catalog at boot")
	flag.Parse()

	cfg := config.Load()

	log := logging.NewFromEnv("gateway")

	store, closeStore, err := openStore(resolveDSN(*dsn, cfg))
	if err != nil {
		log.WithError(err).Fatal("open storage")
	}
	defer closeStore()

	rootCtx := context.Background()

	if *serversFile != "" {
		if err := reconcileServersFile(rootCtx, store.Servers(), *serversFile); err != nil {
			log.WithError(err).Fatal("reconcile servers file")
		}
	}

	metrics := obsmetrics.New(prometheus.DefaultRegisterer)
	bus := events.New()

	tokenCache := transport.NewTokenCache(cfg.RedisAddr)
	connPool := pool.New(log, bus, tokenCache)

	reg := registry.New(log, store.Capabilities())
	if err := reg.LoadAll(rootCtx); err != nil {
		log.WithError(err).Fatal("load registry")
	}

	respCache, err := cache.New(cache.Config{MemoryCapacity: cfg.CacheMemoryCapacity}, store.Cache(), log)
	if err != nil {
		log.WithError(err).Fatal("build response cache")
	}

	limiter := ratelimit.New(store.RateLimits())
	breakers := resilience.NewRegistry(resilience.DefaultConfig())

	rt := router.New(log, reg, connPool, respCache, limiter, breakers, store.Usage(), bus, router.Config{CallTimeout: 30 * time.Second})

	scanner := secretscan.New()
	budgetEnforcer := workflow.NewBudgetEnforcer(store.Budgets())
	engine := workflow.New(log, store.Workflows(), store.Executions(), scanner, budgetEnforcer, rt, bus, workflow.Config{
		DefaultRateLimitPolicy: ratelimit.Policy{PerMinute: cfg.RateLimitDefaultPerMinute, PerDay: cfg.RateLimitDefaultPerDay},
	})

	tmpl := templates.New(store.Templates())
	tenants := tenant.New(log, store.Tenants())

	auditLog := audit.New(log, store.Audit(), audit.Config{})

	webhookWorker := events.NewWebhookWorker(log, store.Webhooks(), bus, &http.Client{Timeout: 10 * time.Second}, events.WebhookWorkerConfig{})
	cleanupWorker := events.NewCleanupWorker(log, store.Webhooks(), events.CleanupConfig{RetainDays: cfg.WebhookDeliveryRetainDays})
	metricsRecorder := obsmetrics.NewEventRecorder(log, bus, metrics)
	rolloverWorker := ratelfront.NewRolloverWorker(log, store.Budgets(), ratelfront.RolloverConfig{})

	processCollector, err := obsmetrics.NewProcessCollector(log, metrics, obsmetrics.ProcessCollectorConfig{})
	if err != nil {
		log.WithError(err).Warn("process collector unavailable, continuing without self-health sampling")
	}

	workers := []worker{auditLog, webhookWorker, cleanupWorker, metricsRecorder, rolloverWorker}
	if processCollector != nil {
		workers = append(workers, processCollector)
	}
	for _, w := range workers {
		if err := w.Start(rootCtx); err != nil {
			log.WithError(err).Fatal("start background worker")
		}
	}

	mux := httpapi.NewRouter(httpapi.Deps{
		Log: log, Store: store, Pool: connPool, Registry: reg, Router: rt, Engine: engine,
		Templates: tmpl, Tenants: tenants, Bus: bus, Audit: auditLog,
		MasterAdminKey:            cfg.MasterAdminKey,
		RateLimitDefaultPerMinute: cfg.RateLimitDefaultPerMinute,
		RateLimitDefaultPerDay:    cfg.RateLimitDefaultPerDay,
	})

	listenAddr := determineAddr(*addr, cfg)
	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams hold the connection open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", listenAddr).Info("mcp gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("serve")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http server shutdown")
	}
	connPool.DisconnectAll()
	for i := len(workers) - 1; i >= 0; i-- {
		if err := workers[i].Stop(shutdownCtx); err != nil {
			log.WithError(err).Warn("background worker stop")
		}
	}
}

// worker is the Start/Stop lifecycle shape shared by every background
// component (audit.Logger, events.WebhookWorker, events.CleanupWorker,
// obsmetrics.EventRecorder, obsmetrics.ProcessCollector,
// ratelfront.RolloverWorker).
type worker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

func determineAddr(flagAddr string, cfg config.Config) string {
	if a := strings.TrimSpace(flagAddr); a != "" {
		return a
	}
	return fmt.Sprintf(":%d", cfg.Port)
}

func resolveDSN(flagDSN string, cfg config.Config) string {
	if d := strings.TrimSpace(flagDSN); d != "" {
		return d
	}
	return cfg.DBPath
}

// openStore selects the storage backend: "memory" (or an empty DSN) runs
// entirely in-process, anything else connects to Postgres. The returned
// close func releases the underlying connection; it is a no-op for memstore.
func openStore(dsn string) (storage.Store, func(), error) {
	if dsn == "" || dsn == "memory" {
		s := memstore.New()
		return s, func() { _ = s.Close() }, nil
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := postgres.New(db)
	return s, func() { _ = s.Close() }, nil
}

// serversFileDoc is the JSON document read by -servers: a top-level
// "servers" array of ServerConfig entries, keyed for reconciliation by
// Name rather than ID since a hand-edited file has no ids to give.
type serversFileDoc struct {
	Servers []model.ServerConfig
}

// reconcileServersFile upserts path's server catalog into store: entries
// whose name already exists are updated in place, new names are created
// with a fresh id. Entries present in the store but absent from the file
// are left untouched; the file only ever adds or updates.
func reconcileServersFile(ctx context.Context, store storage.ServerStore, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read servers file: %w", err)
	}
	var doc serversFileDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse servers file: %w", err)
	}

	existing, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list existing servers: %w", err)
	}
	byName := make(map[string]string, len(existing))
	for _, s := range existing {
		byName[s.Name] = s.ID
	}

	for _, entry := range doc.Servers {
		now := time.Now()
		entry.UpdatedAt = now

		if id, ok := byName[entry.Name]; ok {
			entry.ID = id
			if err := store.Update(ctx, entry); err != nil {
				return fmt.Errorf("update server %q: %w", entry.Name, err)
			}
			continue
		}
		entry.ID = ids.New()
		entry.CreatedAt = now
		if err := store.Create(ctx, entry); err != nil {
			return fmt.Errorf("create server %q: %w", entry.Name, err)
		}
	}
	return nil
}
