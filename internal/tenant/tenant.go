// Package tenant implements Tenant and API key administration (spec §6's
// client-facing surface, supplemented per SPEC_FULL.md §12): tenant CRUD,
// key issuance and revocation, and authentication of a raw caller-presented
// key back to its tenant.
package tenant

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/ids"
	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/storage"
	"github.com/opencore/mcpgate/internal/storage/model"
)

const (
	// keySecretBytes is the entropy of the random portion of an issued key.
	keySecretBytes = 32
	keyPrefix      = "mcpgw_"
	bcryptCost     = bcrypt.DefaultCost
)

// Manager administers tenants and their API keys.
type Manager struct {
	log   *logging.Logger
	store storage.TenantStore
}

func New(log *logging.Logger, store storage.TenantStore) *Manager {
	return &Manager{log: log, store: store}
}

// CreateTenant registers a new tenant.
func (m *Manager) CreateTenant(ctx context.Context, name string) (model.Tenant, error) {
	if name == "" {
		return model.Tenant{}, errs.Validation("name", "must not be empty")
	}
	t := model.Tenant{ID: ids.New(), Name: name, CreatedAt: time.Now()}
	if err := m.store.CreateTenant(ctx, t); err != nil {
		return model.Tenant{}, err
	}
	return t, nil
}

func (m *Manager) GetTenant(ctx context.Context, id string) (model.Tenant, error) {
	return m.store.GetTenant(ctx, id)
}

func (m *Manager) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	return m.store.ListTenants(ctx)
}

// IssuedKey carries the one-time plaintext secret alongside the persisted
// record; the raw key is never retrievable again after this call returns.
type IssuedKey struct {
	Record model.APIKey
	Raw    string
}

// IssueAPIKey mints a new high-entropy key for tenantID. The raw secret is
// hashed twice before it ever reaches storage: a fast SHA-256 digest
// (HashedKey) indexes the record for Authenticate's lookup, and a bcrypt
// hash (BcryptHash) guards against brute force if the store is compromised,
// since an attacker who recovers a SHA-256 digest table can attempt a
// reversal far more cheaply than one guarded by bcrypt's work factor.
func (m *Manager) IssueAPIKey(ctx context.Context, tenantID, label string) (IssuedKey, error) {
	if _, err := m.store.GetTenant(ctx, tenantID); err != nil {
		return IssuedKey{}, err
	}

	secret, err := randomSecret()
	if err != nil {
		return IssuedKey{}, errs.Internal("generate api key secret", err)
	}
	bcryptHash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return IssuedKey{}, errs.Internal("hash api key", err)
	}

	rec := model.APIKey{
		ID:         ids.New(),
		TenantID:   tenantID,
		HashedKey:  lookupDigest(secret),
		BcryptHash: string(bcryptHash),
		Label:      label,
		CreatedAt:  time.Now(),
	}
	if err := m.store.CreateAPIKey(ctx, rec); err != nil {
		return IssuedKey{}, err
	}
	return IssuedKey{Record: rec, Raw: keyPrefix + secret}, nil
}

// Authenticate resolves a raw caller-presented key to its APIKey record.
// The SHA-256 digest narrows storage to a single candidate row in O(1);
// bcrypt.CompareHashAndPassword then verifies that candidate in constant
// time, and a revoked key is rejected even on a hash match.
func (m *Manager) Authenticate(ctx context.Context, rawKey string) (model.APIKey, error) {
	secret, ok := stripPrefix(rawKey)
	if !ok {
		return model.APIKey{}, errs.Unauthenticated("malformed api key")
	}

	rec, err := m.store.GetAPIKeyByHash(ctx, lookupDigest(secret))
	if err != nil {
		return model.APIKey{}, err
	}
	if rec.Revoked {
		return model.APIKey{}, errs.Unauthenticated("api key revoked")
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.BcryptHash), []byte(secret)) != nil {
		return model.APIKey{}, errs.Unauthenticated("invalid api key")
	}
	return rec, nil
}

func (m *Manager) ListAPIKeys(ctx context.Context, tenantID string) ([]model.APIKey, error) {
	return m.store.ListAPIKeys(ctx, tenantID)
}

func (m *Manager) RevokeAPIKey(ctx context.Context, id string) error {
	return m.store.RevokeAPIKey(ctx, id)
}

func randomSecret() (string, error) {
	buf := make([]byte, keySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func lookupDigest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func stripPrefix(rawKey string) (string, bool) {
	if !strings.HasPrefix(rawKey, keyPrefix) || len(rawKey) == len(keyPrefix) {
		return "", false
	}
	return strings.TrimPrefix(rawKey, keyPrefix), true
}
