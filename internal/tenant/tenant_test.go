package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/storage/memstore"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "json", Component: "tenant-test"})
}

func newTestManager() *Manager {
	return New(testLogger(), memstore.New().Tenants())
}

func TestIssueAPIKeyThenAuthenticateSucceeds(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	tn, err := m.CreateTenant(ctx, "acme")
	require.NoError(t, err)

	issued, err := m.IssueAPIKey(ctx, tn.ID, "ci")
	require.NoError(t, err)
	require.NotEmpty(t, issued.Raw)
	require.NotEqual(t, issued.Raw, issued.Record.HashedKey)
	require.NotEqual(t, issued.Raw, issued.Record.BcryptHash)

	rec, err := m.Authenticate(ctx, issued.Raw)
	require.NoError(t, err)
	require.Equal(t, issued.Record.ID, rec.ID)
	require.Equal(t, tn.ID, rec.TenantID)
}

func TestAuthenticateRejectsWrongSecret(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	tn, err := m.CreateTenant(ctx, "acme")
	require.NoError(t, err)
	_, err = m.IssueAPIKey(ctx, tn.ID, "ci")
	require.NoError(t, err)

	_, err = m.Authenticate(ctx, "mcpgw_0000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
}

func TestAuthenticateRejectsMalformedKey(t *testing.T) {
	m := newTestManager()
	_, err := m.Authenticate(context.Background(), "not-a-valid-key")
	require.Error(t, err)
}

func TestAuthenticateRejectsRevokedKey(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	tn, err := m.CreateTenant(ctx, "acme")
	require.NoError(t, err)
	issued, err := m.IssueAPIKey(ctx, tn.ID, "ci")
	require.NoError(t, err)

	require.NoError(t, m.RevokeAPIKey(ctx, issued.Record.ID))

	_, err = m.Authenticate(ctx, issued.Raw)
	require.Error(t, err)
}

func TestIssueAPIKeyUnknownTenantFails(t *testing.T) {
	m := newTestManager()
	_, err := m.IssueAPIKey(context.Background(), "does-not-exist", "ci")
	require.Error(t, err)
}

func TestListAPIKeysScopesToTenant(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	a, err := m.CreateTenant(ctx, "a")
	require.NoError(t, err)
	b, err := m.CreateTenant(ctx, "b")
	require.NoError(t, err)

	_, err = m.IssueAPIKey(ctx, a.ID, "key-a")
	require.NoError(t, err)
	_, err = m.IssueAPIKey(ctx, b.ID, "key-b")
	require.NoError(t, err)

	keysA, err := m.ListAPIKeys(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, keysA, 1)
	require.Equal(t, "key-a", keysA[0].Label)
}

func TestCreateTenantRejectsEmptyName(t *testing.T) {
	m := newTestManager()
	_, err := m.CreateTenant(context.Background(), "")
	require.Error(t, err)
}
