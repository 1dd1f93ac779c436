package application

import (
	"sync"
	"time"
)

// sessionCache remembers which principal a token resolved to so repeated
// Authenticate calls skip the store while the session is unchanged.
type sessionCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]sessionCacheEntry
}

type sessionCacheEntry struct {
	principal Principal
	expiresAt time.Time
}

func newSessionCache(ttl time.Duration, maxEntries int, now func() time.Time) *sessionCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &sessionCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]sessionCacheEntry),
	}
}

func (c *sessionCache) Get(token string) (Principal, bool) {
	if c == nil {
		return Principal{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[token]
	c.mu.RUnlock()
	if !ok {
		return Principal{}, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, token)
		c.mu.Unlock()
		return Principal{}, false
	}
	return entry.principal, true
}

// Store caches principal for token until the cache ttl or sessionExpiry,
// whichever comes first.
func (c *sessionCache) Store(token string, principal Principal, sessionExpiry time.Time) {
	if c == nil || token == "" {
		return
	}
	expiry := c.now().Add(c.ttl)
	if !sessionExpiry.IsZero() && sessionExpiry.Before(expiry) {
		expiry = sessionExpiry
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[token] = sessionCacheEntry{principal: principal, expiresAt: expiry}
}

// Forget drops one token.
func (c *sessionCache) Forget(token string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, token)
	c.mu.Unlock()
}

// ForgetUser drops every token resolved to userID, used after role changes and deletes.
func (c *sessionCache) ForgetUser(userID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	for token, entry := range c.entries {
		if entry.principal.UserID == userID {
			delete(c.entries, token)
		}
	}
	c.mu.Unlock()
}

func (c *sessionCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]sessionCacheEntry)
	c.mu.Unlock()
}

func (c *sessionCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *sessionCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *sessionCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}
