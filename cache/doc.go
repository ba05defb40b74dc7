// Package cache provides second-level cache regions for the persistence
// engine.
//
// LRURegion keeps entries in process memory and is the only region able to
// hold reference entries. ByteRegion encodes entries with msgpack and
// stores them in an external byte store such as Redis or Memcached:
//
//	region := cache.NewByteRegion(redisStore, cache.WithTTL(10*time.Minute), cache.WithPrefix("app:"))
//	cfg, err := persist.NewConfigBuilder().CacheRegion(region).Build()
package cache
