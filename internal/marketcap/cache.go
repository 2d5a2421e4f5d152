// Package marketcap implements the market-cap ingestion and
// reconciliation pipeline: the live trade-feed stream, the in-memory
// valuation cache, the reconciliation engine and the update scheduler.
package marketcap

import (
	"sync"

	"token-launchpad/internal/domain"
)

// Cache holds the latest observed valuation per mint. Last write wins;
// entries are never evicted (bounded by the number of actively-traded
// tokens). Staleness judgment is the caller's responsibility.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]domain.MarketCapEntry
}

// NewCache creates an empty valuation cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]domain.MarketCapEntry),
	}
}

// Upsert stores the entry for its mint, unconditionally overwriting any
// previous one. No out-of-order protection: the feed serializes delivery
// per connection, so the newest write is the newest trade in practice.
func (c *Cache) Upsert(entry domain.MarketCapEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Mint] = entry
}

// Get returns the latest entry for a mint, if any.
func (c *Cache) Get(mint string) (domain.MarketCapEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[mint]
	return entry, ok
}

// Len returns the number of cached mints.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
