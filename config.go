package persist

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/syssam/persist/dialect"
)

// DefaultBatchSize is the batch size used when none is configured.
// A size of 1 disables statement batching.
const DefaultBatchSize = 1

// Config is the frozen engine configuration. It is assembled once through a
// ConfigBuilder and never mutated afterwards, so it can be shared by every
// session without synchronization.
type Config struct {
	dialect    dialect.Dialect
	batchSize  int
	region     CacheRegion
	structured bool
	reference  bool
	logger     *slog.Logger
}

// Dialect returns the configured SQL dialect.
func (c *Config) Dialect() dialect.Dialect { return c.dialect }

// BatchSize returns the configured statement batch size.
func (c *Config) BatchSize() int { return c.batchSize }

// CacheRegion returns the second-level cache region, or nil.
func (c *Config) CacheRegion() CacheRegion { return c.region }

// StructuredCacheEntries reports whether cache entries are field-addressable maps.
func (c *Config) StructuredCacheEntries() bool { return c.structured }

// ReferenceCacheEntries reports whether immutable entities may be cached by reference.
func (c *Config) ReferenceCacheEntries() bool { return c.reference }

// Logger returns the engine logger.
func (c *Config) Logger() *slog.Logger { return c.logger }

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	dialect     dialect.Dialect
	dialectName string
	batchSize   int
	region      CacheRegion
	structured  bool
	reference   bool
	logger      *slog.Logger
	level       *slog.Level
}

// NewConfigBuilder returns a builder with default settings.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{batchSize: DefaultBatchSize}
}

// Dialect sets the SQL dialect.
func (b *ConfigBuilder) Dialect(d dialect.Dialect) *ConfigBuilder {
	b.dialect = d
	return b
}

// DialectName sets the SQL dialect by name (e.g. "postgres").
func (b *ConfigBuilder) DialectName(name string) *ConfigBuilder {
	b.dialectName = name
	return b
}

// BatchSize sets the statement batch size.
func (b *ConfigBuilder) BatchSize(n int) *ConfigBuilder {
	b.batchSize = n
	return b
}

// CacheRegion sets the second-level cache region.
func (b *ConfigBuilder) CacheRegion(r CacheRegion) *ConfigBuilder {
	b.region = r
	return b
}

// StructuredCacheEntries enables field-addressable cache entries.
func (b *ConfigBuilder) StructuredCacheEntries(v bool) *ConfigBuilder {
	b.structured = v
	return b
}

// ReferenceCacheEntries enables caching immutable entities by reference.
func (b *ConfigBuilder) ReferenceCacheEntries(v bool) *ConfigBuilder {
	b.reference = v
	return b
}

// Logger sets the engine logger.
func (b *ConfigBuilder) Logger(l *slog.Logger) *ConfigBuilder {
	b.logger = l
	return b
}

// Build validates the settings and returns the frozen Config.
func (b *ConfigBuilder) Build() (*Config, error) {
	d := b.dialect
	if d == nil && b.dialectName != "" {
		var err error
		if d, err = dialect.Get(b.dialectName); err != nil {
			return nil, NewConfigError("dialect", b.dialectName, err.Error())
		}
	}
	if d == nil {
		return nil, NewConfigError("dialect", nil, "a dialect is required")
	}
	if b.batchSize < 1 {
		return nil, NewConfigError("batch_size", b.batchSize, "batch size must be at least 1")
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
		if b.level != nil {
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: *b.level}))
		}
	}
	return &Config{
		dialect:    d,
		batchSize:  b.batchSize,
		region:     b.region,
		structured: b.structured,
		reference:  b.reference,
		logger:     logger,
	}, nil
}

// fileConfig is the YAML layout read by LoadConfig.
type fileConfig struct {
	Dialect                string `yaml:"dialect"`
	BatchSize              int    `yaml:"batch_size,omitempty"`
	StructuredCacheEntries bool   `yaml:"structured_cache_entries,omitempty"`
	ReferenceCacheEntries  bool   `yaml:"reference_cache_entries,omitempty"`
	LogLevel               string `yaml:"log_level,omitempty"`
}

// LoadConfig reads engine settings from a YAML file. It returns a builder so
// runtime-only collaborators (cache region, logger) can still be attached.
func LoadConfig(path string) (*ConfigBuilder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persist: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML engine settings.
func ParseConfig(data []byte) (*ConfigBuilder, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("persist: parse config: %w", err)
	}
	b := NewConfigBuilder().
		DialectName(fc.Dialect).
		StructuredCacheEntries(fc.StructuredCacheEntries).
		ReferenceCacheEntries(fc.ReferenceCacheEntries)
	if fc.BatchSize != 0 {
		b.BatchSize(fc.BatchSize)
	}
	if fc.LogLevel != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(fc.LogLevel))); err != nil {
			return nil, NewConfigError("log_level", fc.LogLevel, err.Error())
		}
		b.level = &lvl
	}
	return b, nil
}
