package config

import (
	"fmt"
	"strings"
	"time"
)

// NotifyConfig represents notification configuration
type NotifyConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Notification channels
	Email   EmailConfig   `mapstructure:"email"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Slack   SlackConfig   `mapstructure:"slack"`

	// Publish requests to the broker for external delivery
	Broker bool   `mapstructure:"broker"`
	Topic  string `mapstructure:"topic"`

	// Global notification settings
	QueueSize int                   `mapstructure:"queue_size"`
	RateLimit NotifyRateLimitConfig `mapstructure:"rate_limit"`
}

// NotifyRateLimitConfig represents rate limiting configuration
type NotifyRateLimitConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	MaxEvents  int           `mapstructure:"max_events"`
	PerChannel bool          `mapstructure:"per_channel"`
}

// EmailConfig represents the email notification configuration
type EmailConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	SMTPServer string `mapstructure:"smtp_server"`
	SMTPPort   int    `mapstructure:"smtp_port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

// WebhookConfig represents the webhook notification configuration
type WebhookConfig struct {
	Enabled    bool              `mapstructure:"enabled"`
	URL        string            `mapstructure:"url"`
	Secret     string            `mapstructure:"secret"`
	Method     string            `mapstructure:"method"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	MaxRetries int               `mapstructure:"max_retries"`
	Headers    map[string]string `mapstructure:"headers"`
	CommonData map[string]any    `mapstructure:"common_data"`
}

// SlackConfig represents Slack notification configuration
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Username   string `mapstructure:"username"`
	IconEmoji  string `mapstructure:"icon_emoji"`
}

func (c *NotifyConfig) setDefaults() {
	if c.QueueSize == 0 {
		c.QueueSize = 1000
	}
	if c.Topic == "" {
		c.Topic = "qmsgov.notifications"
	}
	if c.RateLimit.Interval == 0 {
		c.RateLimit.Interval = time.Minute
	}
	if c.RateLimit.MaxEvents == 0 {
		c.RateLimit.MaxEvents = 60
	}
	if c.Webhook.Method == "" {
		c.Webhook.Method = "POST"
	}
	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = 10 * time.Second
	}
	if c.Slack.Username == "" {
		c.Slack.Username = "qmsgov"
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
}

// Validate validates notification configuration
func (c *NotifyConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Email.Enabled {
		if err := validateEmailConfig(&c.Email); err != nil {
			return fmt.Errorf("invalid email config: %w", err)
		}
	}
	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		return fmt.Errorf("invalid slack config: slack webhook URL is required")
	}
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return fmt.Errorf("invalid webhook config: webhook URL is required")
	}
	if c.RateLimit.Enabled && c.RateLimit.MaxEvents <= 0 {
		return fmt.Errorf("rate limit max_events must be positive")
	}
	return nil
}

// Validate email configuration
func validateEmailConfig(config *EmailConfig) error {
	if config.SMTPServer == "" {
		return fmt.Errorf("SMTP server is required")
	}
	if config.From == "" {
		return fmt.Errorf("sender email is required")
	}
	if !strings.Contains(config.From, "@") {
		return fmt.Errorf("invalid sender email address: %s", config.From)
	}
	return nil
}
