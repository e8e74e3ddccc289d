package config

import (
	"fmt"
	"time"

	"qmsgov/internal/retry"
	"qmsgov/internal/types"
)

// GovernanceConfig represents change governance engine settings
type GovernanceConfig struct {
	// Overdue approval sweep
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepEnabled  *bool         `mapstructure:"sweep_enabled"`

	// Fallback when neither step nor definition sets a timeout
	DefaultTimeoutHours int `mapstructure:"default_timeout_hours"`

	// Propagation worker pool
	PropagationWorkers   int           `mapstructure:"propagation_workers"`
	PropagationQueueSize int           `mapstructure:"propagation_queue_size"`
	PropagationTopic     string        `mapstructure:"propagation_topic"`
	PropagationRetry     *retry.Config `mapstructure:"propagation_retry"`

	// Roles allowed to bypass any workflow
	AdminRoles []string `mapstructure:"admin_roles"`

	// Roles notified when propagation fails
	PropagationFailureRoles []string `mapstructure:"propagation_failure_roles"`

	// Topic for change event records
	ChangeEventTopic string `mapstructure:"change_event_topic"`
}

// SweepOn reports whether the background sweep should run
func (c *GovernanceConfig) SweepOn() bool {
	return c.SweepEnabled == nil || *c.SweepEnabled
}

func (c *GovernanceConfig) setDefaults() {
	if c.SweepInterval == 0 {
		c.SweepInterval = 5 * time.Minute
	}
	if c.DefaultTimeoutHours == 0 {
		c.DefaultTimeoutHours = 72
	}
	if c.PropagationWorkers == 0 {
		c.PropagationWorkers = 4
	}
	if c.PropagationQueueSize == 0 {
		c.PropagationQueueSize = 256
	}
	if c.PropagationTopic == "" {
		c.PropagationTopic = "qmsgov.propagation"
	}
	if c.ChangeEventTopic == "" {
		c.ChangeEventTopic = "qmsgov.change-events"
	}
	if c.PropagationRetry == nil {
		c.PropagationRetry = retry.DefaultRetryConfig()
	}
	if len(c.AdminRoles) == 0 {
		c.AdminRoles = []string{types.RoleAdmin}
	}
	if len(c.PropagationFailureRoles) == 0 {
		c.PropagationFailureRoles = []string{types.RoleAdmin, types.RoleQualityManager}
	}
}

// Validate validates governance configuration
func (c *GovernanceConfig) Validate() error {
	if c.SweepInterval < time.Second {
		return fmt.Errorf("sweep_interval must be at least 1s")
	}
	if c.DefaultTimeoutHours <= 0 {
		return fmt.Errorf("default_timeout_hours must be positive")
	}
	if c.PropagationWorkers <= 0 {
		return fmt.Errorf("propagation_workers must be positive")
	}
	if c.PropagationQueueSize <= 0 {
		return fmt.Errorf("propagation_queue_size must be positive")
	}
	if err := c.PropagationRetry.Validate(); err != nil {
		return fmt.Errorf("invalid propagation retry: %w", err)
	}
	return nil
}
