// Package templates implements the Server and Workflow template catalog
// (spec §6's client-facing surface, supplemented per SPEC_FULL.md §12):
// CRUD over reusable defaults plus instantiate(id, overrides), which
// overlays caller-supplied overrides on top of a template's defaults to
// produce a concrete ServerConfig or Workflow.
package templates

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/ids"
	"github.com/opencore/mcpgate/internal/storage"
	"github.com/opencore/mcpgate/internal/storage/model"
)

// Manager administers ServerTemplates and WorkflowTemplates.
type Manager struct {
	store storage.TemplateStore
}

func New(store storage.TemplateStore) *Manager {
	return &Manager{store: store}
}

// CreateServerTemplate registers a new named set of ServerConfig defaults.
func (m *Manager) CreateServerTemplate(ctx context.Context, name, description string, defaults map[string]any) (model.ServerTemplate, error) {
	if name == "" {
		return model.ServerTemplate{}, errs.Validation("name", "must not be empty")
	}
	now := time.Now()
	t := model.ServerTemplate{ID: ids.New(), Name: name, Description: description, Defaults: defaults, CreatedAt: now, UpdatedAt: now}
	if err := m.store.CreateServerTemplate(ctx, t); err != nil {
		return model.ServerTemplate{}, err
	}
	return t, nil
}

func (m *Manager) GetServerTemplate(ctx context.Context, id string) (model.ServerTemplate, error) {
	return m.store.GetServerTemplate(ctx, id)
}

func (m *Manager) ListServerTemplates(ctx context.Context) ([]model.ServerTemplate, error) {
	return m.store.ListServerTemplates(ctx)
}

// UpdateServerTemplate replaces a template's defaults in place.
func (m *Manager) UpdateServerTemplate(ctx context.Context, id, name, description string, defaults map[string]any) (model.ServerTemplate, error) {
	existing, err := m.store.GetServerTemplate(ctx, id)
	if err != nil {
		return model.ServerTemplate{}, err
	}
	existing.Name = name
	existing.Description = description
	existing.Defaults = defaults
	existing.UpdatedAt = time.Now()
	if err := m.store.UpdateServerTemplate(ctx, existing); err != nil {
		return model.ServerTemplate{}, err
	}
	return existing, nil
}

func (m *Manager) DeleteServerTemplate(ctx context.Context, id string) error {
	return m.store.DeleteServerTemplate(ctx, id)
}

// InstantiateServer overlays overrides on top of template id's defaults
// and decodes the merged document into a concrete ServerConfig, assigning
// it a fresh id and timestamps. Overrides take precedence key by key at
// the top level; a template never mutates as a result of instantiation.
func (m *Manager) InstantiateServer(ctx context.Context, id string, overrides map[string]any) (model.ServerConfig, error) {
	t, err := m.store.GetServerTemplate(ctx, id)
	if err != nil {
		return model.ServerConfig{}, err
	}
	merged := mergeTop(t.Defaults, overrides)

	var cfg model.ServerConfig
	if err := decodeMerged(merged, &cfg); err != nil {
		return model.ServerConfig{}, errs.Validation("overrides", err.Error())
	}
	now := time.Now()
	cfg.ID = ids.New()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	return cfg, nil
}

// CreateWorkflowTemplate registers a new named set of Workflow defaults.
func (m *Manager) CreateWorkflowTemplate(ctx context.Context, name, description string, defaults map[string]any) (model.WorkflowTemplate, error) {
	if name == "" {
		return model.WorkflowTemplate{}, errs.Validation("name", "must not be empty")
	}
	now := time.Now()
	t := model.WorkflowTemplate{ID: ids.New(), Name: name, Description: description, Defaults: defaults, CreatedAt: now, UpdatedAt: now}
	if err := m.store.CreateWorkflowTemplate(ctx, t); err != nil {
		return model.WorkflowTemplate{}, err
	}
	return t, nil
}

func (m *Manager) GetWorkflowTemplate(ctx context.Context, id string) (model.WorkflowTemplate, error) {
	return m.store.GetWorkflowTemplate(ctx, id)
}

func (m *Manager) ListWorkflowTemplates(ctx context.Context) ([]model.WorkflowTemplate, error) {
	return m.store.ListWorkflowTemplates(ctx)
}

// UpdateWorkflowTemplate replaces a template's defaults in place.
func (m *Manager) UpdateWorkflowTemplate(ctx context.Context, id, name, description string, defaults map[string]any) (model.WorkflowTemplate, error) {
	existing, err := m.store.GetWorkflowTemplate(ctx, id)
	if err != nil {
		return model.WorkflowTemplate{}, err
	}
	existing.Name = name
	existing.Description = description
	existing.Defaults = defaults
	existing.UpdatedAt = time.Now()
	if err := m.store.UpdateWorkflowTemplate(ctx, existing); err != nil {
		return model.WorkflowTemplate{}, err
	}
	return existing, nil
}

func (m *Manager) DeleteWorkflowTemplate(ctx context.Context, id string) error {
	return m.store.DeleteWorkflowTemplate(ctx, id)
}

// InstantiateWorkflow overlays overrides on top of template id's defaults
// and decodes the merged document into a concrete Workflow.
func (m *Manager) InstantiateWorkflow(ctx context.Context, id string, overrides map[string]any) (model.Workflow, error) {
	t, err := m.store.GetWorkflowTemplate(ctx, id)
	if err != nil {
		return model.Workflow{}, err
	}
	merged := mergeTop(t.Defaults, overrides)

	var wf model.Workflow
	if err := decodeMerged(merged, &wf); err != nil {
		return model.Workflow{}, errs.Validation("overrides", err.Error())
	}
	now := time.Now()
	wf.ID = ids.New()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	return wf, nil
}

// mergeTop shallow-merges overrides on top of defaults: a key present in
// overrides replaces the corresponding key in defaults wholesale, rather
// than recursing into nested maps. Neither input is mutated.
func mergeTop(defaults, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// decodeMerged round-trips merged through JSON into dest, the same
// encoding the Workflow Engine already uses to persist Steps/Config as
// JSON columns, so a template document and a stored row share one shape.
func decodeMerged(merged map[string]any, dest any) error {
	raw, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
