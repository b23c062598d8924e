package coordinator

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// cooldownTable throttles (entity, type) pairs after failures or forced
// clears. Entries expire on their own; go-cache handles TTL bookkeeping so
// the coordinator never has to sweep expired windows itself.
type cooldownTable struct {
	cache *gocache.Cache
}

func newCooldownTable() *cooldownTable {
	return &cooldownTable{
		cache: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func cooldownKey(entityID string, typ OpType) string {
	return entityID + "|" + typ.String()
}

// set opens a cooldown window for the pair. A non-positive duration clears
// any existing window instead.
func (c *cooldownTable) set(entityID string, typ OpType, d time.Duration) {
	key := cooldownKey(entityID, typ)
	if d <= 0 {
		c.cache.Delete(key)
		return
	}
	c.cache.Set(key, time.Now().Add(d), d)
}

// until returns the expiry of an active window, or the zero time when the
// pair is not throttled.
func (c *cooldownTable) until(entityID string, typ OpType) time.Time {
	v, ok := c.cache.Get(cooldownKey(entityID, typ))
	if !ok {
		return time.Time{}
	}
	return v.(time.Time)
}

func (c *cooldownTable) active(entityID string, typ OpType) bool {
	return !c.until(entityID, typ).IsZero()
}

// clearEntity removes all windows for an entity.
func (c *cooldownTable) clearEntity(entityID string) {
	for _, typ := range []OpType{OpLoad, OpSave, OpDelete, OpSetActive} {
		c.cache.Delete(cooldownKey(entityID, typ))
	}
}

// reset removes every window.
func (c *cooldownTable) reset() {
	c.cache.Flush()
}

// count returns the number of unexpired windows.
func (c *cooldownTable) count() int {
	return c.cache.ItemCount()
}
