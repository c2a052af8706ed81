package templates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/storage/memstore"
)

func newTestManager() *Manager {
	return New(memstore.New().Templates())
}

func TestInstantiateServerOverlaysOverridesOnDefaults(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	tmpl, err := m.CreateServerTemplate(ctx, "stdio-basic", "a bare stdio server", map[string]any{
		"Name": "placeholder",
		"Transport": map[string]any{
			"Kind":    "stdio",
			"Command": "mcp-server",
		},
		"Enabled": true,
	})
	require.NoError(t, err)

	cfg, err := m.InstantiateServer(ctx, tmpl.ID, map[string]any{
		"Name": "search-prod",
	})
	require.NoError(t, err)
	require.Equal(t, "search-prod", cfg.Name)
	require.Equal(t, "mcp-server", cfg.Transport.Command)
	require.True(t, cfg.Enabled)
	require.NotEmpty(t, cfg.ID)
	require.False(t, cfg.CreatedAt.IsZero())
}

func TestInstantiateServerUnknownTemplateFails(t *testing.T) {
	m := newTestManager()
	_, err := m.InstantiateServer(context.Background(), "does-not-exist", nil)
	require.Error(t, err)
}

func TestInstantiateWorkflowOverlaysOverridesOnDefaults(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	tmpl, err := m.CreateWorkflowTemplate(ctx, "single-step", "one tool call", map[string]any{
		"Name":          "placeholder",
		"ErrorStrategy": "abort",
		"TimeoutMs":     30000,
	})
	require.NoError(t, err)

	wf, err := m.InstantiateWorkflow(ctx, tmpl.ID, map[string]any{
		"Name":      "daily-report",
		"TimeoutMs": 60000,
	})
	require.NoError(t, err)
	require.Equal(t, "daily-report", wf.Name)
	require.Equal(t, int64(60000), wf.TimeoutMs)
	require.EqualValues(t, "abort", wf.ErrorStrategy)
	require.NotEmpty(t, wf.ID)
}

func TestUpdateServerTemplateReplacesDefaults(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	tmpl, err := m.CreateServerTemplate(ctx, "v1", "", map[string]any{"Name": "a"})
	require.NoError(t, err)

	updated, err := m.UpdateServerTemplate(ctx, tmpl.ID, "v2", "renamed", map[string]any{"Name": "b"})
	require.NoError(t, err)
	require.Equal(t, "v2", updated.Name)

	fetched, err := m.GetServerTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Equal(t, "v2", fetched.Name)
	require.Equal(t, "b", fetched.Defaults["Name"])
}

func TestDeleteWorkflowTemplateRemovesIt(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	tmpl, err := m.CreateWorkflowTemplate(ctx, "throwaway", "", map[string]any{})
	require.NoError(t, err)

	require.NoError(t, m.DeleteWorkflowTemplate(ctx, tmpl.ID))
	_, err = m.GetWorkflowTemplate(ctx, tmpl.ID)
	require.Error(t, err)
}

func TestCreateServerTemplateRejectsEmptyName(t *testing.T) {
	m := newTestManager()
	_, err := m.CreateServerTemplate(context.Background(), "", "", nil)
	require.Error(t, err)
}
