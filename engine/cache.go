package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/persist"
)

// CacheCoordinator decides whether and what an entity writes to the
// second-level cache. Concurrency control belongs to the region.
type CacheCoordinator struct {
	c      *Closure
	region persist.CacheRegion
	// structured selects field maps over encoded blobs.
	structured bool
	reference  bool
	cacheable  bool
}

// NewCacheCoordinator returns the coordinator of one closure.
func NewCacheCoordinator(c *Closure, cfg *persist.Config) *CacheCoordinator {
	cacheable := c.Entity.Cacheable
	for _, d := range c.Entity.Descendants() {
		cacheable = cacheable || d.Cacheable
	}
	return &CacheCoordinator{
		c:          c,
		region:     cfg.CacheRegion(),
		structured: cfg.StructuredCacheEntries(),
		reference:  cfg.ReferenceCacheEntries(),
		cacheable:  cacheable,
	}
}

// CanReadFromCache reports whether loads consult the cache.
func (cc *CacheCoordinator) CanReadFromCache() bool {
	return cc.region != nil && cc.cacheable
}

// CanWriteToCache reports whether writes and loads populate the cache.
func (cc *CacheCoordinator) CanWriteToCache() bool {
	return cc.region != nil && cc.cacheable
}

// CanUseReferenceCacheEntry reports whether the live instance itself may be
// cached. Only immutable entities without associations qualify.
func (cc *CacheCoordinator) CanUseReferenceCacheEntry() bool {
	return cc.reference && cc.c.Entity.Immutable && !cc.c.HasAssociation
}

// IsCacheInvalidationRequired reports whether writes must evict the cached
// state instead of replacing it, because the written values cannot be
// trusted to match the committed row.
func (cc *CacheCoordinator) IsCacheInvalidationRequired() bool {
	return cc.c.HasFormula || (!cc.c.Versioned() && (cc.c.Entity.DynamicUpdate || cc.c.HasSecondaryNonOptional))
}

// Key returns the cache key of an identifier. Keys are shared by the whole
// hierarchy so polymorphic loads find subtype entries.
func (cc *CacheCoordinator) Key(id any) persist.CacheKey {
	if parts, ok := id.([]any); ok {
		id = idKey(parts)
	}
	return persist.CacheKey{Entity: cc.c.Entity.TopLevel().Name, ID: id}
}

// blob is the encoded form of an unstructured entry.
type blob struct {
	Version   any   `msgpack:"v"`
	Values    []any `msgpack:"s"`
	Unfetched []int `msgpack:"u,omitempty"`
}

// Entry builds the cache entry of a disassembled state.
func (cc *CacheCoordinator) Entry(obj any, state []any, version any) (*persist.CacheEntry, error) {
	e := &persist.CacheEntry{Entity: cc.c.Name(), Version: version}
	switch {
	case cc.CanUseReferenceCacheEntry():
		e.Reference = obj
	case cc.structured:
		e.Structured = true
		e.Fields = make(map[string]any, len(state))
		for i, v := range state {
			if !IsUnfetched(v) {
				e.Fields[cc.c.Properties[i].Name] = v
			}
		}
	default:
		b := blob{Version: version, Values: make([]any, len(state))}
		for i, v := range state {
			if IsUnfetched(v) {
				b.Unfetched = append(b.Unfetched, i)
				continue
			}
			b.Values[i] = v
		}
		data, err := msgpack.Marshal(&b)
		if err != nil {
			return nil, fmt.Errorf("engine: encode cache entry of %s: %w", cc.c.Name(), err)
		}
		e.Blob = data
	}
	return e, nil
}

// State disassembles a cache entry back into a state array in canonical form.
// Properties the entry does not hold are Unfetched. Reference entries return
// a nil state.
func (cc *CacheCoordinator) State(e *persist.CacheEntry) ([]any, any, error) {
	if e.IsReference() {
		return nil, e.Version, nil
	}
	state := make([]any, cc.c.Len())
	if e.Structured {
		for i, p := range cc.c.Properties {
			v, ok := e.Fields[p.Name]
			if !ok {
				state[i] = Unfetched
				continue
			}
			state[i] = canonical(p, v)
		}
		return state, cc.version(e.Version), nil
	}
	var b blob
	dec := msgpack.NewDecoder(bytes.NewReader(e.Blob))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&b); err != nil {
		return nil, nil, fmt.Errorf("engine: decode cache entry of %s: %w", cc.c.Name(), err)
	}
	if len(b.Values) != cc.c.Len() {
		return nil, nil, fmt.Errorf("engine: cache entry of %s holds %d values, want %d", cc.c.Name(), len(b.Values), cc.c.Len())
	}
	for i, p := range cc.c.Properties {
		state[i] = canonical(p, b.Values[i])
	}
	for _, i := range b.Unfetched {
		state[i] = Unfetched
	}
	return state, cc.version(b.Version), nil
}

func (cc *CacheCoordinator) version(v any) any {
	if !cc.c.Versioned() || v == nil {
		return v
	}
	return canonical(cc.c.Properties[cc.c.VersionIndex], v)
}

// canonical converts v to the canonical form of p, leaving values it cannot
// convert unchanged.
func canonical(p PropertyClosure, v any) any {
	if vs, ok := v.([]any); ok {
		out := make([]any, len(vs))
		for i, x := range vs {
			out[i] = canonical(p, x)
		}
		return out
	}
	if cv, err := p.Type.Canonical(v); err == nil {
		return cv
	}
	return v
}

// Get reads the entry of id. Region failures are reported, not swallowed.
func (cc *CacheCoordinator) Get(ctx context.Context, id any) (*persist.CacheEntry, bool, error) {
	if !cc.CanReadFromCache() {
		return nil, false, nil
	}
	return cc.region.Get(ctx, cc.Key(id))
}

// Put stores an entry.
func (cc *CacheCoordinator) Put(ctx context.Context, id any, e *persist.CacheEntry) error {
	if !cc.CanWriteToCache() {
		return nil
	}
	return cc.region.Put(ctx, cc.Key(id), e)
}

// Evict removes an entry.
func (cc *CacheCoordinator) Evict(ctx context.Context, id any) error {
	if !cc.CanWriteToCache() {
		return nil
	}
	return cc.region.Evict(ctx, cc.Key(id))
}
