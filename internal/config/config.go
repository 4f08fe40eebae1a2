// Package config loads runtime configuration for the storage engine: pool
// sizing, sharding, and default transaction isolation.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/coredb/coredb/internal/buffer"
	"github.com/coredb/coredb/internal/txn"
)

// BufferPoolConfig controls a single pool instance or one shard of a
// sharded pool.
type BufferPoolConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// ShardingConfig controls whether the buffer pool is a single instance or
// split across multiple independently-latched shards.
type ShardingConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	Instances int  `mapstructure:"instances"`
}

// FlusherConfig controls the background dirty-page flusher.
type FlusherConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// Config is the engine's top-level configuration.
type Config struct {
	Heap struct {
		File string `mapstructure:"file"`
	} `mapstructure:"heap"`

	BufferPool BufferPoolConfig `mapstructure:"buffer_pool"`
	Sharding   ShardingConfig   `mapstructure:"sharding"`
	Flusher    FlusherConfig    `mapstructure:"flusher"`

	Transaction struct {
		DefaultIsolation string `mapstructure:"default_isolation"`
	} `mapstructure:"transaction"`
}

// DefaultIsolationLevel parses Transaction.DefaultIsolation into a
// txn.IsolationLevel, defaulting to RepeatableRead on an empty or unknown
// value.
func (c *Config) DefaultIsolationLevel() txn.IsolationLevel {
	switch c.Transaction.DefaultIsolation {
	case "read_uncommitted":
		return txn.ReadUncommitted
	case "read_committed":
		return txn.ReadCommitted
	case "repeatable_read", "":
		return txn.RepeatableRead
	default:
		return txn.RepeatableRead
	}
}

// defaults mirrors the built-in fallbacks set on the viper instance before
// the config file is read, so a minimal or absent file still yields a
// usable engine configuration.
func defaults(v *viper.Viper) {
	v.SetDefault("buffer_pool.capacity", 256)
	v.SetDefault("sharding.enabled", false)
	v.SetDefault("sharding.instances", 4)
	v.SetDefault("flusher.enabled", true)
	v.SetDefault("flusher.interval", "5s")
	v.SetDefault("transaction.default_isolation", "repeatable_read")
}

// NewBackgroundFlusher builds a buffer.BackgroundFlusher for pool from the
// Flusher config, translating Interval into a cron "@every" spec. Returns a
// nil flusher and nil error when the flusher is disabled, so callers can
// treat the result uniformly: start it if non-nil.
func (c *Config) NewBackgroundFlusher(pool buffer.Flushable) (*buffer.BackgroundFlusher, error) {
	if !c.Flusher.Enabled {
		return nil, nil
	}
	schedule := fmt.Sprintf("@every %s", c.Flusher.Interval)
	return buffer.NewBackgroundFlusher(pool, schedule)
}

// Load reads path (YAML) into a Config, applying defaults for any field the
// file omits.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	defaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return &cfg, nil
}
