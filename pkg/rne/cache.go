package rne

import (
	"sync"
	"time"
)

// TokenCache stores the registry bearer token between requests. It is
// injectable so multi-process deployments can share a token through an
// external store.
type TokenCache interface {
	Get() (token string, ok bool)
	Set(token string, expiresAt time.Time)
}

// MemoryTokenCache is the default single-process cache.
type MemoryTokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewMemoryTokenCache creates an empty cache.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{}
}

// Get returns the cached token if it has not expired.
func (c *MemoryTokenCache) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || time.Now().After(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// Set stores a token with its expiry.
func (c *MemoryTokenCache) Set(token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = expiresAt
}
