// Package cache reuses soundscapes across scenes that share a fingerprint,
// so equivalent ambient audio is synthesized once and copied after.
package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/asp2131/storia/internal/store"
)

const lockStripes = 64

// Cache fronts the store's fingerprint index with per-fingerprint
// serialization and hit/miss accounting.
type Cache struct {
	store           store.Store
	enabled         bool
	excludeSameBook bool

	locks [lockStripes]sync.Mutex

	hits     atomic.Int64
	misses   atomic.Int64
	discards atomic.Int64
}

// Stats is the cache status surface.
type Stats struct {
	Enabled  bool  `json:"enabled"`
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Discards int64 `json:"discards"`
}

// New creates a cache over the store's fingerprint index.
func New(st store.Store, enabled, excludeSameBook bool) *Cache {
	return &Cache{store: st, enabled: enabled, excludeSameBook: excludeSameBook}
}

// LockFingerprint serializes work on one fingerprint. Callers hold the lock
// across lookup-synthesize-insert so a concurrent scene with the same
// fingerprint waits and then hits. The returned func releases the lock.
func (c *Cache) LockFingerprint(fingerprint string) func() {
	lock := &c.locks[stripe(fingerprint)]
	lock.Lock()
	return lock.Unlock
}

// Lookup returns the canonical soundscape for a fingerprint, or nil on a
// miss. bookID is the requesting book; when same-book exclusion is on, an
// entry that book produced does not serve.
func (c *Cache) Lookup(ctx context.Context, fingerprint, bookID string) (*store.Soundscape, error) {
	if !c.enabled {
		return nil, nil
	}

	exclude := ""
	if c.excludeSameBook {
		exclude = bookID
	}
	hit, err := c.store.CacheLookup(ctx, fingerprint, exclude)
	if err != nil {
		return nil, err
	}
	if hit == nil {
		c.misses.Add(1)
		return nil, nil
	}
	c.hits.Add(1)
	return hit, nil
}

// Insert claims the canonical entry for a fingerprint. The first writer
// wins; a losing insert is discarded and counted.
func (c *Cache) Insert(ctx context.Context, fingerprint, soundscapeID string) (bool, error) {
	if !c.enabled {
		return false, nil
	}

	won, err := c.store.CacheInsert(ctx, fingerprint, soundscapeID)
	if err != nil {
		return false, err
	}
	if !won {
		c.discards.Add(1)
	}
	return won, nil
}

// Stats reports entry count and runtime counters.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Enabled:  c.enabled,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Discards: c.discards.Load(),
	}
	if !c.enabled {
		return stats, nil
	}
	entries, err := c.store.CacheEntries(ctx)
	if err != nil {
		return stats, err
	}
	stats.Entries = entries
	return stats, nil
}

func stripe(fingerprint string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fingerprint))
	return h.Sum32() % lockStripes
}
