// Package config loads the auction engine's settings from a YAML or TOML file.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Log      LogConfig      `yaml:"log" toml:"log"`
	Engine   EngineConfig   `yaml:"engine" toml:"engine"`
	Notify   NotifyConfig   `yaml:"notify" toml:"notify"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Archive  ArchiveConfig  `yaml:"archive" toml:"archive"`
	Identity IdentityConfig `yaml:"identity" toml:"identity"`
	Bidders  []BidderConfig `yaml:"bidders" toml:"bidders"`
}

type ServerConfig struct {
	Port            string   `yaml:"port" toml:"port"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// EngineConfig tunes the auction registry.
type EngineConfig struct {
	SweepInterval  Duration `yaml:"sweep_interval" toml:"sweep_interval"`
	ArchiveTimeout Duration `yaml:"archive_timeout" toml:"archive_timeout"`
}

type NotifyConfig struct {
	// BufferSize is the number of events a subscriber may fall behind before it is disconnected.
	BufferSize int `yaml:"buffer_size" toml:"buffer_size"`
}

// DatabaseConfig selects the durable store. Driver is "memory" or "postgres".
type DatabaseConfig struct {
	Driver   string `yaml:"driver" toml:"driver"`
	URL      string `yaml:"url" toml:"url"`
	MinConns int    `yaml:"min_conns" toml:"min_conns"`
	MaxConns int    `yaml:"max_conns" toml:"max_conns"`
	Migrate  bool   `yaml:"migrate" toml:"migrate"`
}

// ArchiveConfig enables copying closed auctions to an S3 bucket.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Bucket    string `yaml:"bucket" toml:"bucket"`
	Prefix    string `yaml:"prefix" toml:"prefix"`
	Region    string `yaml:"region" toml:"region"`
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	AccessKey string `yaml:"access_key" toml:"access_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	PathStyle bool   `yaml:"path_style" toml:"path_style"`
}

type IdentityConfig struct {
	CacheSize int `yaml:"cache_size" toml:"cache_size"`
}

// BidderConfig seeds the in-memory bidder directory.
type BidderConfig struct {
	ID   string `yaml:"id" toml:"id"`
	Name string `yaml:"name" toml:"name"`
}

// Duration is a time.Duration written as a Go duration string ("2s", "500ms").
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
