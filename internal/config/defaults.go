package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort            = "8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "info"
	DefaultSweepInterval   = 2 * time.Second
	DefaultArchiveTimeout  = 10 * time.Second
	DefaultBufferSize      = 64
	DefaultDriver          = DriverMemory
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultArchivePrefix   = "auctions"
	DefaultArchiveRegion   = "us-east-1"
	DefaultCacheSize       = 1024
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// Engine defaults
	if c.Engine.SweepInterval == 0 {
		c.Engine.SweepInterval = Duration(DefaultSweepInterval)
	}
	if c.Engine.ArchiveTimeout == 0 {
		c.Engine.ArchiveTimeout = Duration(DefaultArchiveTimeout)
	}

	if c.Notify.BufferSize == 0 {
		c.Notify.BufferSize = DefaultBufferSize
	}

	// Database defaults
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Archive defaults
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = DefaultArchivePrefix
	}
	if c.Archive.Region == "" {
		c.Archive.Region = DefaultArchiveRegion
	}

	if c.Identity.CacheSize == 0 {
		c.Identity.CacheSize = DefaultCacheSize
	}
}
