// Package registry maintains the qualified-name index of backend tools,
// prompts, and resources (spec §4.2) and the reverse server id -> qualified
// name index used to unregister a server's capabilities in one pass.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/pool"
	"github.com/opencore/mcpgate/internal/storage"
	"github.com/opencore/mcpgate/internal/storage/model"
)

// Registry holds weak back-references to Connections via server id; it
// never owns a Client, only reads it from the Pool at registerServer time
// (spec §4.1 ownership: "Registry holds weak back-references to
// Connections via server id, never owns them").
type Registry struct {
	log   *logging.Logger
	store storage.CapabilityStore

	mu      sync.RWMutex
	byName  map[model.CapabilityKind]map[string]model.CapabilityEntry // qualifiedName -> entry
	byLocal map[model.CapabilityKind]map[string][]string              // localName -> qualifiedNames, registration order
	byServer map[string]map[model.CapabilityKind]map[string]struct{}  // serverId -> kind -> qualifiedName set
}

func New(log *logging.Logger, store storage.CapabilityStore) *Registry {
	return &Registry{
		log:   log,
		store: store,
		byName: map[model.CapabilityKind]map[string]model.CapabilityEntry{
			model.CapabilityTool:     make(map[string]model.CapabilityEntry),
			model.CapabilityPrompt:   make(map[string]model.CapabilityEntry),
			model.CapabilityResource: make(map[string]model.CapabilityEntry),
		},
		byLocal: map[model.CapabilityKind]map[string][]string{
			model.CapabilityTool:     make(map[string][]string),
			model.CapabilityPrompt:   make(map[string][]string),
			model.CapabilityResource: make(map[string][]string),
		},
		byServer: make(map[string]map[model.CapabilityKind]map[string]struct{}),
	}
}

// LoadAll repopulates the in-memory index from durable storage, used at
// startup so the registry survives a process restart without re-listing
// every backend server.
func (r *Registry) LoadAll(ctx context.Context) error {
	for _, kind := range []model.CapabilityKind{model.CapabilityTool, model.CapabilityPrompt, model.CapabilityResource} {
		entries, err := r.store.List(ctx, kind)
		if err != nil {
			return fmt.Errorf("registry: load %s entries: %w", kind, err)
		}
		r.mu.Lock()
		for _, e := range entries {
			r.insertLocked(e)
		}
		r.mu.Unlock()
	}
	return nil
}

// RegisterServer lists tools, prompts, and resources over client and
// indexes them under cfg's server id and name, persisting each entry.
func (r *Registry) RegisterServer(ctx context.Context, cfg model.ServerConfig, client pool.Client) error {
	tools, err := client.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("registry: list tools for %s: %w", cfg.ID, err)
	}
	prompts, err := client.ListPrompts(ctx)
	if err != nil {
		return fmt.Errorf("registry: list prompts for %s: %w", cfg.ID, err)
	}
	resources, err := client.ListResources(ctx)
	if err != nil {
		return fmt.Errorf("registry: list resources for %s: %w", cfg.ID, err)
	}

	entries := make([]model.CapabilityEntry, 0, len(tools)+len(prompts)+len(resources))
	for _, t := range tools {
		entries = append(entries, model.CapabilityEntry{
			Kind: model.CapabilityTool, QualifiedName: cfg.Name + "/" + t.Name,
			ServerID: cfg.ID, ServerName: cfg.Name, LocalName: t.Name,
			Description: t.Description, InputSchema: t.InputSchema,
		})
	}
	for _, p := range prompts {
		entries = append(entries, model.CapabilityEntry{
			Kind: model.CapabilityPrompt, QualifiedName: cfg.Name + "/" + p.Name,
			ServerID: cfg.ID, ServerName: cfg.Name, LocalName: p.Name,
			Description: p.Description,
		})
	}
	for _, res := range resources {
		name := res.Name
		if name == "" {
			name = res.URI
		}
		entries = append(entries, model.CapabilityEntry{
			Kind: model.CapabilityResource, QualifiedName: cfg.Name + "/" + name,
			ServerID: cfg.ID, ServerName: cfg.Name, LocalName: name,
			Description: res.Description, URI: res.URI,
		})
	}

	for _, e := range entries {
		if err := r.store.Upsert(ctx, e); err != nil {
			return fmt.Errorf("registry: persist %s: %w", e.QualifiedName, err)
		}
	}

	r.mu.Lock()
	r.removeServerLocked(cfg.ID)
	for _, e := range entries {
		r.insertLocked(e)
	}
	r.mu.Unlock()

	r.log.WithContext(ctx).WithField("server_id", cfg.ID).
		WithField("count", len(entries)).Info("registered server capabilities")
	return nil
}

// UnregisterServer drops every entry owned by serverID from both the
// in-memory index and durable storage (spec §5: "after disconnect(s)
// completes, registry.search({server:s}) returns empty").
func (r *Registry) UnregisterServer(ctx context.Context, serverID string) error {
	if err := r.store.DeleteByServer(ctx, serverID); err != nil {
		return fmt.Errorf("registry: delete by server %s: %w", serverID, err)
	}
	r.mu.Lock()
	r.removeServerLocked(serverID)
	r.mu.Unlock()
	return nil
}

func (r *Registry) insertLocked(e model.CapabilityEntry) {
	r.byName[e.Kind][e.QualifiedName] = e
	r.byLocal[e.Kind][e.LocalName] = append(r.byLocal[e.Kind][e.LocalName], e.QualifiedName)

	byKind, ok := r.byServer[e.ServerID]
	if !ok {
		byKind = make(map[model.CapabilityKind]map[string]struct{})
		r.byServer[e.ServerID] = byKind
	}
	if byKind[e.Kind] == nil {
		byKind[e.Kind] = make(map[string]struct{})
	}
	byKind[e.Kind][e.QualifiedName] = struct{}{}
}

// removeServerLocked must be called with r.mu held for writing.
func (r *Registry) removeServerLocked(serverID string) {
	byKind, ok := r.byServer[serverID]
	if !ok {
		return
	}
	for kind, names := range byKind {
		for qualified := range names {
			delete(r.byName[kind], qualified)
			local := localNameOf(qualified)
			r.byLocal[kind][local] = removeString(r.byLocal[kind][local], qualified)
			if len(r.byLocal[kind][local]) == 0 {
				delete(r.byLocal[kind], local)
			}
		}
	}
	delete(r.byServer, serverID)
}

func localNameOf(qualifiedName string) string {
	if idx := strings.LastIndex(qualifiedName, "/"); idx >= 0 {
		return qualifiedName[idx+1:]
	}
	return qualifiedName
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// Find resolves nameOrLocal for kind: a qualified name ("server/tool")
// matches directly; a bare local name matches the first-registered entry
// ending in "/<name>" (spec §4.2: ambiguous bare names return the
// first-registered one; callers SHOULD qualify).
func (r *Registry) Find(kind model.CapabilityKind, nameOrLocal string) (model.CapabilityEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.byName[kind][nameOrLocal]; ok {
		return e, true
	}
	candidates := r.byLocal[kind][nameOrLocal]
	if len(candidates) == 0 {
		return model.CapabilityEntry{}, false
	}
	return r.byName[kind][candidates[0]], true
}

// SearchOptions filters Search's substring match over name, description,
// and server name, plus an exact filter by server id. Tag and category
// filters live one layer up, in internal/httpapi, since they are joined
// against ServerConfig rather than the capability entry itself.
type SearchOptions struct {
	Kind     model.CapabilityKind // empty matches all three kinds
	Query    string                // substring, case-insensitive
	ServerID string                // exact match, empty matches all
	Offset   int
	Limit    int
}

// Search returns a page of entries and the total match count before
// paging, ordered by qualified name for stable pagination.
func (r *Registry) Search(opts SearchOptions) ([]model.CapabilityEntry, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := []model.CapabilityKind{model.CapabilityTool, model.CapabilityPrompt, model.CapabilityResource}
	if opts.Kind != "" {
		kinds = []model.CapabilityKind{opts.Kind}
	}

	query := strings.ToLower(strings.TrimSpace(opts.Query))
	var matched []model.CapabilityEntry
	for _, kind := range kinds {
		for _, e := range r.byName[kind] {
			if opts.ServerID != "" && e.ServerID != opts.ServerID {
				continue
			}
			if query != "" && !matchesQuery(e, query) {
				continue
			}
			matched = append(matched, e)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].QualifiedName < matched[j].QualifiedName })

	total := len(matched)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if opts.Limit > 0 && offset+opts.Limit < end {
		end = offset + opts.Limit
	}
	return matched[offset:end], total
}

func matchesQuery(e model.CapabilityEntry, query string) bool {
	return strings.Contains(strings.ToLower(e.QualifiedName), query) ||
		strings.Contains(strings.ToLower(e.Description), query) ||
		strings.Contains(strings.ToLower(e.ServerName), query)
}
