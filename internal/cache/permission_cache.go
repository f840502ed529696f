package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"portal/internal/authz"
)

// PermissionCache holds aggregated permission sets per member for a short,
// bounded duration. Staleness inside the TTL is accepted: role grants and
// branch moves happen at human timescales. A miss simply recomputes.
type PermissionCache interface {
	Get(ctx context.Context, memberID uuid.UUID) (*authz.PermissionSet, bool)
	Set(ctx context.Context, memberID uuid.UUID, set *authz.PermissionSet)
	Invalidate(ctx context.Context, memberID uuid.UUID)
	// InvalidateAll drops every cached set. Used after role or permission
	// definitions change, which can affect any number of members.
	InvalidateAll(ctx context.Context)
}

type memoryEntry struct {
	set       *authz.PermissionSet
	expiresAt time.Time
}

// MemoryCache is the in-process implementation: a sync.Map with per-entry
// TTL. Used when no Redis address is configured and in tests.
type MemoryCache struct {
	entries sync.Map // uuid.UUID -> memoryEntry
	ttl     time.Duration
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl}
}

func (c *MemoryCache) Get(_ context.Context, memberID uuid.UUID) (*authz.PermissionSet, bool) {
	v, ok := c.entries.Load(memberID)
	if !ok {
		return nil, false
	}
	entry := v.(memoryEntry)
	if time.Now().After(entry.expiresAt) {
		c.entries.Delete(memberID)
		return nil, false
	}
	return entry.set, true
}

func (c *MemoryCache) Set(_ context.Context, memberID uuid.UUID, set *authz.PermissionSet) {
	c.entries.Store(memberID, memoryEntry{set: set, expiresAt: time.Now().Add(c.ttl)})
}

func (c *MemoryCache) Invalidate(_ context.Context, memberID uuid.UUID) {
	c.entries.Delete(memberID)
}

func (c *MemoryCache) InvalidateAll(_ context.Context) {
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
}
