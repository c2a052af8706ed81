package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/pool"
	"github.com/opencore/mcpgate/internal/storage/memstore"
	"github.com/opencore/mcpgate/internal/storage/model"
)

type fakeCapabilityClient struct {
	tools     []pool.ToolDescriptor
	prompts   []pool.PromptDescriptor
	resources []pool.ResourceDescriptor
}

func (f *fakeCapabilityClient) ListTools(ctx context.Context) ([]pool.ToolDescriptor, error) {
	return f.tools, nil
}
func (f *fakeCapabilityClient) CallTool(ctx context.Context, name string, params map[string]any) (pool.CallResult, error) {
	return pool.CallResult{}, nil
}
func (f *fakeCapabilityClient) ListPrompts(ctx context.Context) ([]pool.PromptDescriptor, error) {
	return f.prompts, nil
}
func (f *fakeCapabilityClient) GetPrompt(ctx context.Context, name string, params map[string]any) (pool.CallResult, error) {
	return pool.CallResult{}, nil
}
func (f *fakeCapabilityClient) ListResources(ctx context.Context) ([]pool.ResourceDescriptor, error) {
	return f.resources, nil
}
func (f *fakeCapabilityClient) ReadResource(ctx context.Context, uri string) (pool.CallResult, error) {
	return pool.CallResult{}, nil
}
func (f *fakeCapabilityClient) Ping(ctx context.Context) error { return nil }
func (f *fakeCapabilityClient) Close() error                   { return nil }

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "json", Component: "registry-test"})
}

func TestRegisterServerIndexesAllCapabilityKinds(t *testing.T) {
	store := memstore.New()
	r := New(testLogger(), store.Capabilities())
	client := &fakeCapabilityClient{
		tools:     []pool.ToolDescriptor{{Name: "search", Description: "full text search"}},
		prompts:   []pool.PromptDescriptor{{Name: "summarize"}},
		resources: []pool.ResourceDescriptor{{URI: "file:///readme", Name: "readme"}},
	}
	cfg := model.ServerConfig{ID: "srv1", Name: "docs"}

	require.NoError(t, r.RegisterServer(context.Background(), cfg, client))

	e, ok := r.Find(model.CapabilityTool, "docs/search")
	require.True(t, ok)
	require.Equal(t, "srv1", e.ServerID)

	_, ok = r.Find(model.CapabilityPrompt, "docs/summarize")
	require.True(t, ok)
	_, ok = r.Find(model.CapabilityResource, "docs/readme")
	require.True(t, ok)
}

func TestFindResolvesBareLocalNameToFirstRegistered(t *testing.T) {
	store := memstore.New()
	r := New(testLogger(), store.Capabilities())
	ctx := context.Background()

	require.NoError(t, r.RegisterServer(ctx, model.ServerConfig{ID: "a", Name: "alpha"},
		&fakeCapabilityClient{tools: []pool.ToolDescriptor{{Name: "search"}}}))
	require.NoError(t, r.RegisterServer(ctx, model.ServerConfig{ID: "b", Name: "beta"},
		&fakeCapabilityClient{tools: []pool.ToolDescriptor{{Name: "search"}}}))

	e, ok := r.Find(model.CapabilityTool, "search")
	require.True(t, ok)
	require.Equal(t, "alpha/search", e.QualifiedName, "first-registered entry wins an ambiguous bare name")
}

func TestUnregisterServerClearsItsEntriesOnly(t *testing.T) {
	store := memstore.New()
	r := New(testLogger(), store.Capabilities())
	ctx := context.Background()

	require.NoError(t, r.RegisterServer(ctx, model.ServerConfig{ID: "a", Name: "alpha"},
		&fakeCapabilityClient{tools: []pool.ToolDescriptor{{Name: "search"}}}))
	require.NoError(t, r.RegisterServer(ctx, model.ServerConfig{ID: "b", Name: "beta"},
		&fakeCapabilityClient{tools: []pool.ToolDescriptor{{Name: "search"}}}))

	require.NoError(t, r.UnregisterServer(ctx, "a"))

	_, ok := r.Find(model.CapabilityTool, "alpha/search")
	require.False(t, ok)
	_, ok = r.Find(model.CapabilityTool, "beta/search")
	require.True(t, ok)

	entries, total := r.Search(SearchOptions{ServerID: "a"})
	require.Equal(t, 0, total)
	require.Empty(t, entries)
}

func TestSearchFiltersBySubstringAndPages(t *testing.T) {
	store := memstore.New()
	r := New(testLogger(), store.Capabilities())
	ctx := context.Background()

	require.NoError(t, r.RegisterServer(ctx, model.ServerConfig{ID: "a", Name: "alpha"}, &fakeCapabilityClient{
		tools: []pool.ToolDescriptor{
			{Name: "image-search", Description: "search images"},
			{Name: "text-search", Description: "search documents"},
			{Name: "translate", Description: "translate text"},
		},
	}))

	matches, total := r.Search(SearchOptions{Kind: model.CapabilityTool, Query: "search"})
	require.Equal(t, 2, total)
	require.Len(t, matches, 2)

	page, total := r.Search(SearchOptions{Kind: model.CapabilityTool, Query: "search", Limit: 1})
	require.Equal(t, 2, total)
	require.Len(t, page, 1)
}

func TestLoadAllRepopulatesFromDurableStorage(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	require.NoError(t, store.Capabilities().Upsert(ctx, model.CapabilityEntry{
		Kind: model.CapabilityTool, QualifiedName: "alpha/search", ServerID: "a", ServerName: "alpha", LocalName: "search",
	}))

	r := New(testLogger(), store.Capabilities())
	require.NoError(t, r.LoadAll(ctx))

	_, ok := r.Find(model.CapabilityTool, "alpha/search")
	require.True(t, ok)
}
