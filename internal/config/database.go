package config

import (
	"fmt"
	"time"
)

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, mysql, postgres, pgx, memory
	DSN             string        `mapstructure:"dsn"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`

	// Migration settings
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
	MigrationsPath string `mapstructure:"migrations_path"`

	// Query performance settings
	MaxQueryRows  int           `mapstructure:"max_query_rows"`
	SlowQueryTime time.Duration `mapstructure:"slow_query_time"`
}

// IsMemory reports whether the in-memory store is selected
func (c *DatabaseConfig) IsMemory() bool {
	return c.Driver == "memory"
}

func (c *DatabaseConfig) setDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.Driver == "sqlite" && c.DSN == "" {
		c.DSN = "qmsgov.db"
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30 * time.Second
	}
	if c.MaxQueryRows == 0 {
		c.MaxQueryRows = 1000
	}
	if c.SlowQueryTime == 0 {
		c.SlowQueryTime = time.Second
	}
	if c.MigrationsPath == "" {
		c.MigrationsPath = "migrations"
	}
}

// Validate validates database configuration
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "memory":
		return nil
	case "sqlite", "mysql", "postgres", "pgx":
		// Valid drivers
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.AutoMigrate && c.MigrationsPath == "" {
		return fmt.Errorf("migrations path is required when auto migrate is enabled")
	}
	return nil
}
