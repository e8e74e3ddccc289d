package config

import (
	"fmt"
	"time"
)

// AuditConfig selects where audit entries are written
type AuditConfig struct {
	Driver string      `mapstructure:"driver"` // sql, mongo
	Mongo  MongoConfig `mapstructure:"mongo"`
}

// MongoConfig represents mongodb audit sink settings
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

func (c *AuditConfig) setDefaults() {
	if c.Driver == "" {
		c.Driver = "sql"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "qmsgov"
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = "audit_logs"
	}
	if c.Mongo.ConnectTimeout == 0 {
		c.Mongo.ConnectTimeout = 10 * time.Second
	}
}

// Validate validates audit configuration. The sql driver writes to the
// main database, which includes the in-memory store.
func (c *AuditConfig) Validate() error {
	switch c.Driver {
	case "sql":
	case "mongo":
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo uri is required")
		}
	default:
		return fmt.Errorf("unsupported audit driver: %s", c.Driver)
	}
	return nil
}
