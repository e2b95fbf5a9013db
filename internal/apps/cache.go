package apps

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"hookrelay.io/internal/ids"
)

const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 30 * time.Second
)

// Cached wraps a Store and memoizes successful FindApp lookups. Keys include
// the organization, so an entry is only ever served back to the tenant that
// loaded it. Misses and errors are not cached.
//
// Delete bumps a generation counter; a lookup that started before the bump
// does not populate the cache, so a deleted application is never re-added by
// a read that raced the delete. Other processes sharing the same database are
// not notified and may serve a deleted application until their entry expires.
type Cached struct {
	Store
	cache *lru.LRU[string, Application]

	mu  sync.Mutex
	gen uint64
}

var _ Store = (*Cached)(nil)

// NewCached returns a caching decorator. Non-positive size or ttl use the defaults.
func NewCached(store Store, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		Store: store,
		cache: lru.NewLRU[string, Application](size, nil, ttl),
	}
}

func cacheKey(orgID ids.OrganizationID, idOrUID ids.ApplicationIDOrUID) string {
	return string(orgID) + "|" + string(idOrUID)
}

func (c *Cached) FindApp(ctx context.Context, orgID ids.OrganizationID, idOrUID ids.ApplicationIDOrUID) (*Application, error) {
	key := cacheKey(orgID, idOrUID)
	if app, ok := c.cache.Get(key); ok {
		return &app, nil
	}
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	app, err := c.Store.FindApp(ctx, orgID, idOrUID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.cache.Add(key, *app)
	}
	c.mu.Unlock()
	return app, nil
}

func (c *Cached) Delete(ctx context.Context, orgID ids.OrganizationID, appID ids.ApplicationID) error {
	if err := c.Store.Delete(ctx, orgID, appID); err != nil {
		return err
	}
	// The uid alias is not known here, so drop everything.
	c.mu.Lock()
	c.gen++
	c.cache.Purge()
	c.mu.Unlock()
	return nil
}

// Len reports the number of cached entries.
func (c *Cached) Len() int { return c.cache.Len() }
