package persist

import (
	"context"
	"fmt"
	"time"
)

// CacheRegion is the second-level cache capability consumed by the engine.
// Implementations own their concurrency control; the engine only decides
// whether and what to read or write.
type CacheRegion interface {
	// Get returns the entry stored under key.
	// The boolean is false when the key is absent.
	Get(ctx context.Context, key CacheKey) (*CacheEntry, bool, error)

	// Put stores the entry under key, replacing any previous entry.
	Put(ctx context.Context, key CacheKey, entry *CacheEntry) error

	// Evict removes the entry stored under key. Evicting a missing key is not an error.
	Evict(ctx context.Context, key CacheKey) error
}

// ByteCache is the interface for external byte-oriented stores
// (e.g., Redis, Memcached). cache.ByteRegion adapts it to a CacheRegion.
type ByteCache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error
}

// CacheKey identifies one cached entity row.
type CacheKey struct {
	Entity string
	ID     any
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s#%v", k.Entity, k.ID)
}

// CacheEntry is the cached form of an entity state.
//
// Exactly one representation is populated:
//   - Reference holds the live instance (immutable entities only).
//   - Fields holds a structured, field-addressable map keyed by property name.
//     Properties that were never fetched are absent from the map.
//   - Blob holds the opaque encoded disassembled value array.
type CacheEntry struct {
	Entity     string
	Version    any
	Structured bool
	Fields     map[string]any
	Blob       []byte
	Reference  any
}

// IsReference reports whether the entry stores a live instance.
func (e *CacheEntry) IsReference() bool {
	return e.Reference != nil
}
