package taskinfo

import (
	"sync"
	"time"
)

// memoKey identifies one currency check.
type memoKey struct {
	taskID string
	path   string
}

type memoEntry struct {
	upToDate  bool
	expiresAt time.Time
}

// currencyMemo is a small TTL cache for is-up-to-date results, so bursts
// of submissions do not hammer the frontend's checksum endpoint.
type currencyMemo struct {
	mu         sync.Mutex
	entries    map[memoKey]memoEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func newCurrencyMemo(maxEntries int, ttl time.Duration) *currencyMemo {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	if ttl <= 0 {
		ttl = 20 * time.Second
	}
	return &currencyMemo{
		entries:    make(map[memoKey]memoEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *currencyMemo) get(key memoKey) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return false, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return false, false
	}
	return entry.upToDate, true
}

func (c *currencyMemo) put(key memoKey, upToDate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = memoEntry{upToDate: upToDate, expiresAt: c.now().Add(c.ttl)}
}

// evictLocked drops expired entries, then the soonest-to-expire one if
// still at capacity.
func (c *currencyMemo) evictLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	var oldest memoKey
	var oldestAt time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.expiresAt.Before(oldestAt) {
			oldest, oldestAt, first = key, entry.expiresAt, false
		}
	}
	delete(c.entries, oldest)
}

// invalidate forgets all memoized results for one task.
func (c *currencyMemo) invalidate(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.taskID == taskID {
			delete(c.entries, key)
		}
	}
}
