package packfile

import (
	"github.com/golang/groupcache/lru"

	"github.com/pktwire/pktwire/hash"
)

// baseCache bounds how many resolved (fully-inflated) delta-chain bases the
// scanner keeps in memory at once (§4.4, "a cache bounded by a configurable
// window, evicting to the backing store when the window is exceeded").
type baseCache struct {
	byOffset *lru.Cache
	byHash   *lru.Cache
}

func newBaseCache(size int) *baseCache {
	return &baseCache{
		byOffset: lru.New(size),
		byHash:   lru.New(size),
	}
}

func (c *baseCache) getByOffset(offset int64) ([]byte, bool) {
	v, ok := c.byOffset.Get(offset)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (c *baseCache) getByHash(h hash.Hash) ([]byte, bool) {
	v, ok := c.byHash.Get(h)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (c *baseCache) put(offset int64, h hash.Hash, content []byte) {
	c.byOffset.Add(offset, content)
	if !h.IsZero() {
		c.byHash.Add(h, content)
	}
}
