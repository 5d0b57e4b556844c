// Package marketcache keeps recently fetched market metadata in memory.
package marketcache

import (
	"sync"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
)

const (
	DefaultTTL        = 60 * time.Second
	DefaultMaxEntries = 1000
)

type entry struct {
	info     domain.MarketInfo
	storedAt time.Time
}

// Cache is a TTL store keyed by market id. Expiry is checked on read; there
// is no background sweeper. An entry older than the TTL is treated as absent.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// Option configura el Cache.
type Option func(*Cache)

// WithClock inyecta el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMaxEntries limita el tamaño; <= 0 usa DefaultMaxEntries.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// New crea un Cache con el TTL dado (<= 0 usa DefaultTTL).
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries:    make(map[string]entry),
		ttl:        ttl,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the entry for marketID if present and not older than the TTL.
func (c *Cache) Get(marketID string) (domain.MarketInfo, bool) {
	c.mu.RLock()
	e, ok := c.entries[marketID]
	c.mu.RUnlock()
	if !ok || c.expired(e, c.now()) {
		return domain.MarketInfo{}, false
	}
	return e.info, true
}

// Put stores info under its MarketID, replacing any previous entry.
// When full it drops expired entries first, then the oldest one.
func (c *Cache) Put(info domain.MarketInfo) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[info.MarketID]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[info.MarketID] = entry{info: info, storedAt: now}
}

// Len devuelve el número de entradas (incluidas las expiradas no barridas).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) expired(e entry, now time.Time) bool {
	return now.Sub(e.storedAt) > c.ttl
}

func (c *Cache) evictLocked(now time.Time) {
	for id, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, id)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}

	var (
		oldestID string
		oldestAt time.Time
	)
	for id, e := range c.entries {
		if oldestID == "" || e.storedAt.Before(oldestAt) {
			oldestID, oldestAt = id, e.storedAt
		}
	}
	delete(c.entries, oldestID)
}
