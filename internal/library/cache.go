package library

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of catalog lookups kept per manager.
const DefaultCacheSize = 256

// Cached wraps a Manager and memoizes LookupByCatalogID. Searches, adds and
// library-membership checks always go to the manager; a successful Add
// evicts the cached entry so the next lookup reflects the new library id.
type Cached struct {
	Manager
	lookups *lru.Cache[int, *Result]
}

// NewCached wraps m with an LRU of the given size (DefaultCacheSize if <= 0).
func NewCached(m Manager, size int) (*Cached, error) {
	if m == nil {
		return nil, fmt.Errorf("library: cached: manager is required")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[int, *Result](size)
	if err != nil {
		return nil, fmt.Errorf("library: cached: %w", err)
	}
	return &Cached{Manager: m, lookups: c}, nil
}

// LookupByCatalogID returns a cached copy when present.
func (c *Cached) LookupByCatalogID(ctx context.Context, tmdbID int) (*Result, error) {
	if r, ok := c.lookups.Get(tmdbID); ok {
		if r == nil {
			return nil, nil
		}
		cp := *r
		return &cp, nil
	}
	r, err := c.Manager.LookupByCatalogID(ctx, tmdbID)
	if err != nil {
		return nil, err
	}
	if r != nil {
		cp := *r
		c.lookups.Add(tmdbID, &cp)
	} else {
		c.lookups.Add(tmdbID, nil)
	}
	return r, nil
}

// Add forwards to the manager and drops any cached lookup for the item.
func (c *Cached) Add(ctx context.Context, r Result, opts AddOptions) (Added, error) {
	added, err := c.Manager.Add(ctx, r, opts)
	if err == nil {
		c.lookups.Remove(r.TmdbID)
	}
	return added, err
}

// Len returns the number of cached lookups.
func (c *Cached) Len() int { return c.lookups.Len() }
