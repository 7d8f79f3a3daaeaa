// Package config loads the runtime's operational settings from a TOML
// file: where log/index files live, the default record compression,
// the placement region, the per-connection rate limit, and any
// per-stream classification overrides. Everything here is operator
// input; the deterministic core never reads it directly — the runtime
// translates it into constructor arguments once, at startup.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"kimberlite/internal/ratelimit"
	"kimberlite/internal/recordlog"
	"kimberlite/internal/schema"
	"kimberlite/internal/schemaload"
)

// Config is the decoded shape of a kimberlite.toml.
type Config struct {
	DataDir     string `toml:"data_dir"`
	Compression string `toml:"compression"` // none | lz4 | zstd
	Region      string `toml:"region"`      // empty means Global placement

	RateLimit      RateLimitConfig   `toml:"rate_limit"`
	Classification map[string]string `toml:"classification"` // stream name -> class
}

// RateLimitConfig sizes the per-connection token bucket. Zero values
// disable rate limiting.
type RateLimitConfig struct {
	MaxRequests   int `toml:"max_requests"`
	WindowSeconds int `toml:"window_seconds"`
}

// Default returns the configuration used when no file is given: data
// in ./data, no compression, global placement, no rate limit.
func Default() *Config {
	return &Config{DataDir: "data", Compression: "none"}
}

// Load reads and validates a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the runtime could not honor.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if _, err := c.CompressionKind(); err != nil {
		return err
	}
	if (c.RateLimit.MaxRequests > 0) != (c.RateLimit.WindowSeconds > 0) {
		return fmt.Errorf("config: rate_limit needs both max_requests and window_seconds")
	}
	for stream, class := range c.Classification {
		if _, ok := schemaload.DataClassName(class); !ok {
			return fmt.Errorf("config: classification override for %q names unknown class %q", stream, class)
		}
	}
	return nil
}

// CompressionKind resolves the compression setting to a codec kind.
func (c *Config) CompressionKind() (recordlog.CompressionKind, error) {
	switch c.Compression {
	case "", "none":
		return recordlog.CompressionNone, nil
	case "lz4":
		return recordlog.CompressionLz4, nil
	case "zstd":
		return recordlog.CompressionZstd, nil
	default:
		return 0, fmt.Errorf("config: unknown compression %q", c.Compression)
	}
}

// Placement resolves the region setting: empty means Global, the two
// named regions get their fixed tags, anything else is Custom.
func (c *Config) Placement() schema.Placement {
	switch c.Region {
	case "":
		return schema.GlobalPlacement()
	case "us-east-1":
		return schema.RegionPlacement(schema.Region{Tag: schema.RegionUSEast1})
	case "ap-southeast-2":
		return schema.RegionPlacement(schema.Region{Tag: schema.RegionAPSoutheast2})
	default:
		return schema.RegionPlacement(schema.Region{Tag: schema.RegionCustom, Name: c.Region})
	}
}

// RateLimiter returns the token-bucket config, or nil when rate
// limiting is disabled.
func (c *Config) RateLimiter() *ratelimit.Config {
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.WindowSeconds <= 0 {
		return nil
	}
	return &ratelimit.Config{
		MaxRequests: c.RateLimit.MaxRequests,
		Window:      time.Duration(c.RateLimit.WindowSeconds) * time.Second,
	}
}

// ClassOverride returns the declared DataClass for a stream name, if
// the config carries one. The policy layer still rejects an override
// less restrictive than the name-inferred class.
func (c *Config) ClassOverride(streamName string) (schema.DataClass, bool) {
	raw, ok := c.Classification[streamName]
	if !ok {
		return 0, false
	}
	return schemaload.DataClassName(raw)
}
