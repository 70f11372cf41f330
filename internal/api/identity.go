package api

import (
	"sync"

	"github.com/remedygo/remedyd/internal/backend"
)

// IdentityCache holds the authenticated identity between lifecycle calls so
// per-request handlers do not hit the auth oracle.
type IdentityCache struct {
	mu    sync.RWMutex
	ident *backend.Identity
}

// NewIdentityCache creates an empty identity cache.
func NewIdentityCache() *IdentityCache {
	return &IdentityCache{}
}

// Set stores the identity. Nil clears it.
func (c *IdentityCache) Set(ident *backend.Identity) {
	c.mu.Lock()
	c.ident = ident
	c.mu.Unlock()
}

// Current returns the cached identity, or nil while signed out.
func (c *IdentityCache) Current() *backend.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ident == nil {
		return nil
	}
	ident := *c.ident
	return &ident
}
