package config

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if c.Engine.SweepInterval <= 0 {
		return errors.New("engine.sweep_interval must be > 0")
	}
	if c.Engine.ArchiveTimeout <= 0 {
		return errors.New("engine.archive_timeout must be > 0")
	}
	if c.Notify.BufferSize < 1 {
		return errors.New("notify.buffer_size must be >= 1")
	}
	if c.Identity.CacheSize < 1 {
		return errors.New("identity.cache_size must be >= 1")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}
	if err := c.Archive.validate("archive"); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Bidders))
	for i, b := range c.Bidders {
		if b.ID == "" {
			return fmt.Errorf("bidders[%d].id is required", i)
		}
		if seen[b.ID] {
			return fmt.Errorf("bidders[%d]: duplicate id %q", i, b.ID)
		}
		seen[b.ID] = true
	}

	return nil
}

func (db *DatabaseConfig) validate(prefix string) error {
	switch db.Driver {
	case DriverMemory:
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("%s.driver must be %q or %q, got %q", prefix, DriverMemory, DriverPostgres, db.Driver)
	}

	if db.URL == "" {
		return fmt.Errorf("%s.url is required for the postgres driver", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func (a *ArchiveConfig) validate(prefix string) error {
	if !a.Enabled {
		return nil
	}
	if a.Bucket == "" {
		return fmt.Errorf("%s.bucket is required when the archive is enabled", prefix)
	}
	if (a.AccessKey == "") != (a.SecretKey == "") {
		return fmt.Errorf("%s.access_key and %s.secret_key must be set together", prefix, prefix)
	}
	return nil
}
