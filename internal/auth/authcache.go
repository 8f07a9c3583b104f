package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"mcpgate/internal/store"
)

const (
	DefaultAuthCacheTTL  = 5 * time.Minute
	DefaultAuthCacheSize = 1024
)

type authCacheKey struct {
	serverID string
	userID   string
}

type authCacheEntry struct {
	State            store.AuthStatus
	Timestamp        time.Time
	TokenFingerprint string
}

// authCache memoizes "authenticated" per (server, user) for this process.
// An entry only counts while the record still carries the token it was
// recorded for, so a rotated or cleared token is an automatic miss.
type authCache struct {
	mu         sync.Mutex
	entries    map[authCacheKey]authCacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func newAuthCache(ttl time.Duration, maxEntries int, now func() time.Time) *authCache {
	if ttl <= 0 {
		ttl = DefaultAuthCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultAuthCacheSize
	}
	return &authCache{
		entries:    make(map[authCacheKey]authCacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
	}
}

// tokenFingerprint is a short SHA-256 prefix; the token itself is never held here.
func tokenFingerprint(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:8])
}

// authenticated reports a live hit for the current token. Stale or
// mismatched entries are evicted.
func (c *authCache) authenticated(serverID, userID, currentAccessToken string) bool {
	key := authCacheKey{serverID: serverID, userID: userID}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().Sub(entry.Timestamp) >= c.ttl ||
		entry.State != store.AuthStatusAuthorized ||
		entry.TokenFingerprint != tokenFingerprint(currentAccessToken) {
		delete(c.entries, key)
		return false
	}
	return true
}

func (c *authCache) put(serverID, userID string, state store.AuthStatus, accessToken string) {
	key := authCacheKey{serverID: serverID, userID: userID}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = authCacheEntry{
		State:            state,
		Timestamp:        now,
		TokenFingerprint: tokenFingerprint(accessToken),
	}
}

// evictLocked drops expired entries, and the oldest one if that freed nothing.
func (c *authCache) evictLocked(now time.Time) {
	var oldestKey authCacheKey
	var oldest time.Time
	found := false
	for k, e := range c.entries {
		if now.Sub(e.Timestamp) >= c.ttl {
			delete(c.entries, k)
			continue
		}
		if !found || e.Timestamp.Before(oldest) {
			oldestKey, oldest, found = k, e.Timestamp, true
		}
	}
	if len(c.entries) >= c.maxEntries && found {
		delete(c.entries, oldestKey)
	}
}

func (c *authCache) remove(serverID, userID string) {
	c.mu.Lock()
	delete(c.entries, authCacheKey{serverID: serverID, userID: userID})
	c.mu.Unlock()
}

func (c *authCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
