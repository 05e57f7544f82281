package permission

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/taskdesk-api/internal/model"
)

// RoleSettings holds one role's configured settings keyed by permission type.
type RoleSettings map[model.PermissionType]model.PermissionSetting

// List returns the settings in permission type order.
func (rs RoleSettings) List() []model.PermissionSetting {
	out := make([]model.PermissionSetting, 0, len(rs))
	for _, pt := range model.PermissionTypes {
		if s, ok := rs[pt]; ok {
			out = append(out, s)
		}
	}
	return out
}

func newRoleSettings(settings []*model.PermissionSetting) RoleSettings {
	rs := make(RoleSettings, len(settings))
	for _, s := range settings {
		if s == nil {
			continue
		}
		rs[s.PermissionType] = *s
	}
	return rs
}

// SettingsCache is a process-scoped cache of permission settings keyed by
// role. Entries expire after the TTL and are dropped explicitly whenever a
// setting changes.
//
// Every invalidation bumps a generation. A reader captures the generation
// before loading from the store and hands it back to Set, so a load that
// raced an invalidation is never cached.
type SettingsCache struct {
	c *cache.Cache

	mu    sync.Mutex
	epoch uint64
	gens  map[model.Role]uint64
}

// NewSettingsCache creates a cache whose entries live for ttl. A non-positive
// ttl disables caching.
func NewSettingsCache(ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		return &SettingsCache{}
	}
	return &SettingsCache{c: cache.New(ttl, 2*ttl), gens: map[model.Role]uint64{}}
}

// Generation returns the current generation for role. Pass it to Set after
// loading the role's settings.
func (sc *SettingsCache) Generation(role model.Role) uint64 {
	if sc == nil || sc.c == nil {
		return 0
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.epoch + sc.gens[role]
}

func (sc *SettingsCache) Get(role model.Role) (RoleSettings, bool) {
	if sc == nil || sc.c == nil {
		return nil, false
	}
	v, ok := sc.c.Get(string(role))
	if !ok {
		return nil, false
	}
	rs, ok := v.(RoleSettings)
	return rs, ok
}

// Set caches rs for role unless the role was invalidated after gen was taken.
// It reports whether the entry was stored.
func (sc *SettingsCache) Set(role model.Role, rs RoleSettings, gen uint64) bool {
	if sc == nil || sc.c == nil {
		return false
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.epoch+sc.gens[role] != gen {
		return false
	}
	sc.c.SetDefault(string(role), rs)
	return true
}

// Invalidate drops the cached settings for role.
func (sc *SettingsCache) Invalidate(role model.Role) {
	if sc == nil || sc.c == nil {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.gens[role]++
	sc.c.Delete(string(role))
}

// InvalidateAll drops every cached role.
func (sc *SettingsCache) InvalidateAll() {
	if sc == nil || sc.c == nil {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.epoch++
	sc.c.Flush()
}
