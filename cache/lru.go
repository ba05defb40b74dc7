package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/syssam/persist"
)

// lruStore is the method set shared by the plain and the expirable LRU.
type lruStore interface {
	Get(key string) (*persist.CacheEntry, bool)
	Add(key string, value *persist.CacheEntry) bool
	Remove(key string) bool
	Len() int
	Purge()
}

// LRURegion is an in-process region bounded by entry count.
// It is safe for concurrent use.
type LRURegion struct {
	store lruStore
}

// NewLRURegion returns a region holding at most size entries.
func NewLRURegion(size int) (*LRURegion, error) {
	c, err := lru.New[string, *persist.CacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("cache: lru region: %w", err)
	}
	return &LRURegion{store: c}, nil
}

// NewExpirableRegion returns a region holding at most size entries, each
// expiring ttl after it was stored. A size of zero means no bound.
func NewExpirableRegion(size int, ttl time.Duration) *LRURegion {
	return &LRURegion{store: expirable.NewLRU[string, *persist.CacheEntry](size, nil, ttl)}
}

// Get returns the entry stored under key.
func (r *LRURegion) Get(_ context.Context, key persist.CacheKey) (*persist.CacheEntry, bool, error) {
	e, ok := r.store.Get(key.String())
	return e, ok, nil
}

// Put stores the entry under key.
func (r *LRURegion) Put(_ context.Context, key persist.CacheKey, entry *persist.CacheEntry) error {
	r.store.Add(key.String(), entry)
	return nil
}

// Evict removes the entry stored under key.
func (r *LRURegion) Evict(_ context.Context, key persist.CacheKey) error {
	r.store.Remove(key.String())
	return nil
}

// Len returns the number of stored entries.
func (r *LRURegion) Len() int { return r.store.Len() }

// Purge removes every entry.
func (r *LRURegion) Purge() { r.store.Purge() }

var _ persist.CacheRegion = (*LRURegion)(nil)
