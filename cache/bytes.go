package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/persist"
)

// ErrReferenceEntry is returned when a reference entry is stored in a region
// that serializes its entries.
var ErrReferenceEntry = errors.New("cache: reference entries cannot be serialized")

// wireEntry is the encoded form of a persist.CacheEntry.
type wireEntry struct {
	Entity     string         `msgpack:"e"`
	Version    any            `msgpack:"v,omitempty"`
	Structured bool           `msgpack:"t,omitempty"`
	Fields     map[string]any `msgpack:"f,omitempty"`
	Blob       []byte         `msgpack:"b,omitempty"`
}

// ByteRegion adapts a persist.ByteCache to a persist.CacheRegion.
// Concurrency control is left to the store.
type ByteRegion struct {
	store  persist.ByteCache
	prefix string
	ttl    time.Duration
}

// ByteOption configures a ByteRegion.
type ByteOption func(*ByteRegion)

// WithTTL sets the expiry passed to the store on every write.
func WithTTL(ttl time.Duration) ByteOption {
	return func(r *ByteRegion) { r.ttl = ttl }
}

// WithPrefix namespaces every key written by the region.
func WithPrefix(prefix string) ByteOption {
	return func(r *ByteRegion) { r.prefix = prefix }
}

// NewByteRegion returns a region over store.
func NewByteRegion(store persist.ByteCache, opts ...ByteOption) *ByteRegion {
	r := &ByteRegion{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ByteRegion) key(k persist.CacheKey) string {
	return r.prefix + k.String()
}

// Get returns the entry stored under key. Entries that fail to decode are
// reported as errors rather than misses.
func (r *ByteRegion) Get(ctx context.Context, key persist.CacheKey) (*persist.CacheEntry, bool, error) {
	data, err := r.store.Get(ctx, r.key(key))
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if data == nil {
		return nil, false, nil
	}
	var w wireEntry
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&w); err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return &persist.CacheEntry{
		Entity:     w.Entity,
		Version:    w.Version,
		Structured: w.Structured,
		Fields:     w.Fields,
		Blob:       w.Blob,
	}, true, nil
}

// Put encodes and stores the entry under key.
func (r *ByteRegion) Put(ctx context.Context, key persist.CacheKey, entry *persist.CacheEntry) error {
	if entry.IsReference() {
		return ErrReferenceEntry
	}
	data, err := msgpack.Marshal(&wireEntry{
		Entity:     entry.Entity,
		Version:    entry.Version,
		Structured: entry.Structured,
		Fields:     entry.Fields,
		Blob:       entry.Blob,
	})
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := r.store.Set(ctx, r.key(key), data, r.ttl); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Evict deletes the entry stored under key.
func (r *ByteRegion) Evict(ctx context.Context, key persist.CacheKey) error {
	if err := r.store.Delete(ctx, r.key(key)); err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

var _ persist.CacheRegion = (*ByteRegion)(nil)
