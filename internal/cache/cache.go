// Package cache holds the in-memory cache of preprocessed source
// documents. Building a match.Doc walks the full source content, so
// verifying many citations against the same source should pay that
// cost once per process, not once per citation.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ppiankov/attest/internal/match"
)

// DocCache caches preprocessed documents keyed by source content hash.
// Content-hash keys make invalidation unnecessary: changed content is
// a different key.
type DocCache struct {
	cache *gocache.Cache
}

// NewDocCache creates a doc cache with the given TTL. Cleanup runs at
// twice the TTL.
func NewDocCache(ttl time.Duration) *DocCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &DocCache{
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Get retrieves a preprocessed document by content hash
func (c *DocCache) Get(contentHash string) (*match.Doc, bool) {
	if val, found := c.cache.Get(contentHash); found {
		return val.(*match.Doc), true
	}
	return nil, false
}

// Set stores a preprocessed document under its content hash
func (c *DocCache) Set(contentHash string, doc *match.Doc) {
	c.cache.SetDefault(contentHash, doc)
}

// Clear removes all cached documents
func (c *DocCache) Clear() {
	c.cache.Flush()
}
