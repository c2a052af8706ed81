package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/storage"
	"github.com/opencore/mcpgate/internal/storage/model"
)

// Config configures the Response Cache's memory tier.
type Config struct {
	// MemoryCapacity bounds the number of entries held in the in-memory LRU
	// tier; the durable tier is unbounded.
	MemoryCapacity int
	// DefaultTTL is used when a caller does not specify one explicitly.
	DefaultTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MemoryCapacity <= 0 {
		c.MemoryCapacity = 1000
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 5 * time.Minute
	}
	return c
}

// entry is what the memory tier actually stores; it mirrors model.CacheEntry
// but keeps hit bookkeeping local so a memory hit does not need a durable
// round trip just to bump hitCount/lastHitAt.
type entry struct {
	value     []byte
	expiresAt time.Time
	hitCount  int64
	lastHitAt time.Time
}

// Cache is the two-tier Response Cache described in spec §4.4: an in-memory
// LRU tier of bounded capacity fronting an unbounded durable tier. A durable
// hit promotes the entry into memory, evicting the LRU tail if the tier is
// full. Expired entries, whichever tier they're found in, are treated as a
// miss and never returned.
type Cache struct {
	cfg     Config
	log     *logging.Logger
	durable storage.CacheStore

	mu     sync.Mutex
	memory *lru.Cache[string, *entry]
}

func New(cfg Config, durable storage.CacheStore, log *logging.Logger) (*Cache, error) {
	cfg = cfg.withDefaults()
	mem, err := lru.New[string, *entry](cfg.MemoryCapacity)
	if err != nil {
		return nil, err
	}
	return &Cache{cfg: cfg, log: log, durable: durable, memory: mem}, nil
}

// Get looks up kind/serverID/name/params, checking the memory tier first and
// falling back to the durable tier. A durable hit is promoted into memory.
// Returns ok=false on miss or if the stored entry has expired.
func (c *Cache) Get(ctx context.Context, kind model.CapabilityKind, serverID, name string, params map[string]any) ([]byte, bool, error) {
	hash, err := ParamHash(params)
	if err != nil {
		return nil, false, err
	}
	key := Key(kind, serverID, name, hash)
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.memory.Get(key); ok {
		if e.expiresAt.After(now) {
			e.hitCount++
			e.lastHitAt = now
			c.mu.Unlock()
			c.log.WithContext(ctx).WithField("key", key).Debug("cache hit (memory)")
			return e.value, true, nil
		}
		c.memory.Remove(key)
	}
	c.mu.Unlock()

	row, ok, err := c.durable.Get(ctx, key, now)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	if err := c.durable.RecordHit(ctx, key, now); err != nil {
		c.log.WithContext(ctx).WithFields(logrus.Fields{"key": key, "error": err}).Warn("failed to record durable cache hit")
	}

	c.mu.Lock()
	c.memory.Add(key, &entry{value: row.Value, expiresAt: row.ExpiresAt, hitCount: row.HitCount + 1, lastHitAt: now})
	c.mu.Unlock()

	c.log.WithContext(ctx).WithField("key", key).Debug("cache hit (durable, promoted)")
	return row.Value, true, nil
}

// Set writes value into both tiers with the given TTL (or the configured
// default if ttl <= 0).
func (c *Cache) Set(ctx context.Context, kind model.CapabilityKind, serverID, name string, params map[string]any, value []byte, ttl time.Duration) error {
	hash, err := ParamHash(params)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	key := Key(kind, serverID, name, hash)
	now := time.Now()
	expiresAt := now.Add(ttl)

	row := model.CacheEntry{
		Key:       key,
		Kind:      kind,
		ServerID:  serverID,
		Name:      name,
		ParamHash: hash,
		Value:     value,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := c.durable.Put(ctx, row); err != nil {
		return err
	}

	c.mu.Lock()
	c.memory.Add(key, &entry{value: value, expiresAt: expiresAt})
	c.mu.Unlock()
	return nil
}

// Invalidate purges cached entries. An empty serverID with empty kind purges
// everything this process holds in memory plus issues a durable-wide purge;
// a non-empty serverID purges that server's entries in both tiers. Purging
// by capability kind alone (serverID == "") is scoped to the memory tier,
// since the durable tier's index is by server, matching spec §4.4's
// "by server id, by type, or unconditionally" filter set.
func (c *Cache) Invalidate(ctx context.Context, serverID string, kind model.CapabilityKind) error {
	c.mu.Lock()
	for _, key := range c.memory.Keys() {
		if matchesFilter(key, serverID, kind) {
			c.memory.Remove(key)
		}
	}
	c.mu.Unlock()

	if serverID != "" {
		return c.durable.InvalidateByServer(ctx, serverID)
	}
	if kind == "" {
		return c.durable.InvalidateAll(ctx)
	}
	return nil
}

func matchesFilter(key, serverID string, kind model.CapabilityKind) bool {
	if serverID == "" && kind == "" {
		return true
	}
	k, sid, _, ok := parseKey(key)
	if !ok {
		return true
	}
	if serverID != "" && sid != serverID {
		return false
	}
	if kind != "" && k != kind {
		return false
	}
	return true
}
