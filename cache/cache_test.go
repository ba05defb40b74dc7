package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/persist"
	"github.com/syssam/persist/dialect"
	"github.com/syssam/persist/engine"
	"github.com/syssam/persist/schema"
	"github.com/syssam/persist/schema/field"
)

// memStore is a persist.ByteCache over a map.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.data[key], nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.data, key)
	return nil
}

func TestLRURegion(t *testing.T) {
	ctx := context.Background()
	r, err := NewLRURegion(2)
	require.NoError(t, err)

	k1 := persist.CacheKey{Entity: "User", ID: int64(1)}
	k2 := persist.CacheKey{Entity: "User", ID: int64(2)}
	k3 := persist.CacheKey{Entity: "User", ID: int64(3)}
	require.NoError(t, r.Put(ctx, k1, &persist.CacheEntry{Entity: "User", Version: int64(1)}))
	require.NoError(t, r.Put(ctx, k2, &persist.CacheEntry{Entity: "User"}))

	e, ok, err := r.Get(ctx, k1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), e.Version)

	// k2 is now the least recently used entry.
	require.NoError(t, r.Put(ctx, k3, &persist.CacheEntry{Entity: "User"}))
	_, ok, _ = r.Get(ctx, k2)
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len())

	require.NoError(t, r.Evict(ctx, k1))
	require.NoError(t, r.Evict(ctx, k1), "evicting a missing key is not an error")
	_, ok, _ = r.Get(ctx, k1)
	assert.False(t, ok)

	r.Purge()
	assert.Zero(t, r.Len())

	_, err = NewLRURegion(0)
	assert.Error(t, err)
}

func TestLRURegionKeepsReferences(t *testing.T) {
	ctx := context.Background()
	r, err := NewLRURegion(8)
	require.NoError(t, err)
	country := map[string]any{"code": "no"}
	key := persist.CacheKey{Entity: "Country", ID: "no"}
	require.NoError(t, r.Put(ctx, key, &persist.CacheEntry{Entity: "Country", Reference: country}))
	e, ok, err := r.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, e.IsReference())
	e.Reference.(map[string]any)["name"] = "Norway"
	assert.Equal(t, "Norway", country["name"], "the live instance is stored")
}

func TestExpirableRegion(t *testing.T) {
	ctx := context.Background()
	r := NewExpirableRegion(0, 20*time.Millisecond)
	key := persist.CacheKey{Entity: "User", ID: int64(1)}
	require.NoError(t, r.Put(ctx, key, &persist.CacheEntry{Entity: "User"}))
	_, ok, err := r.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Eventually(t, func() bool {
		_, ok, _ := r.Get(ctx, key)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestByteRegion(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := NewByteRegion(store, WithTTL(time.Minute), WithPrefix("app:"))
	key := persist.CacheKey{Entity: "User", ID: int64(7)}

	_, ok, err := r.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	in := &persist.CacheEntry{Entity: "User", Version: int64(3), Blob: []byte{0x93, 1, 2, 3}}
	require.NoError(t, r.Put(ctx, key, in))
	assert.Contains(t, store.data, "app:User#7")
	assert.Equal(t, time.Minute, store.ttls["app:User#7"])

	out, ok, err := r.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "User", out.Entity)
	assert.EqualValues(t, 3, out.Version)
	assert.Equal(t, in.Blob, out.Blob)
	assert.False(t, out.Structured)

	require.NoError(t, r.Evict(ctx, key))
	assert.Empty(t, store.data)
}

func TestByteRegionErrors(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := NewByteRegion(store)
	key := persist.CacheKey{Entity: "Country", ID: "no"}

	err := r.Put(ctx, key, &persist.CacheEntry{Entity: "Country", Reference: struct{}{}})
	assert.ErrorIs(t, err, ErrReferenceEntry)

	store.data["Country#no"] = []byte{0xc1}
	_, _, err = r.Get(ctx, key)
	assert.Error(t, err, "undecodable entries are not misses")

	boom := errors.New("connection refused")
	store.err = boom
	_, _, err = r.Get(ctx, key)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, r.Put(ctx, key, &persist.CacheEntry{Entity: "Country"}), boom)
	assert.ErrorIs(t, r.Evict(ctx, key), boom)
}

func TestByteRegionWithEngine(t *testing.T) {
	ctx := context.Background()
	e := schema.New("Account").
		ID(field.Int64("id")).
		Fields(
			field.String("owner"),
			field.Int64("balance"),
			field.Time("opened"),
			field.Text("notes").Lazy(),
			field.Int64("version").Version(),
		).
		Cacheable().
		MustBuild()
	opened := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	for _, structured := range []bool{false, true} {
		region := NewByteRegion(newMemStore())
		cfg, err := persist.NewConfigBuilder().
			Dialect(dialect.MustGet(dialect.Postgres)).
			CacheRegion(region).
			StructuredCacheEntries(structured).
			Build()
		require.NoError(t, err)
		p, err := engine.NewPersister(e, cfg, nil)
		require.NoError(t, err)
		cc := p.Cache()

		entry, err := cc.Entry(nil, []any{"ann", int64(250), opened, engine.Unfetched, int64(5)}, int64(5))
		require.NoError(t, err)
		require.NoError(t, cc.Put(ctx, int64(1), entry))

		got, ok, err := cc.Get(ctx, int64(1))
		require.NoError(t, err)
		require.True(t, ok)
		state, version, err := cc.State(got)
		require.NoError(t, err)
		assert.Equal(t, int64(5), version, "structured=%v", structured)
		assert.Equal(t, "ann", state[0])
		assert.Equal(t, int64(250), state[1])
		assert.True(t, opened.Equal(state[2].(time.Time)))
		assert.True(t, engine.IsUnfetched(state[3]))
	}
}
