package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// AppName is the name of the application
	AppName = "qmsgov"

	// EnvPrefix prefixes environment overrides, e.g. QMSGOV_DATABASE_DSN
	EnvPrefix = "QMSGOV"

	// Config search paths

	// InDot is the path to the config file in ./
	InDot = "."
	// InEtc is the path to the config file in /etc/{AppName}
	InEtc = "/etc/" + AppName
	// InHome is the path to the config file in $HOME/.config/{AppName}
	InHome = "$HOME/.config/" + AppName
)

// Config represents the complete service configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Log        LogConfig        `mapstructure:"log"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Governance GovernanceConfig `mapstructure:"governance"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Audit      AuditConfig      `mapstructure:"audit"`
	API        APIConfig        `mapstructure:"api"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	MetricsPath     string        `mapstructure:"metrics_path"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TLS             TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents the TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// APIConfig represents the API configuration
type APIConfig struct {
	// Authentication
	Auth AuthConfig `mapstructure:"auth"`

	// CORS settings
	CORS CORSConfig `mapstructure:"cors"`

	// Rate limiting
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// AuthConfig selects how the acting user is identified.
// Authentication itself happens upstream; the API trusts the header.
type AuthConfig struct {
	UserHeader string `mapstructure:"user_header"`
}

// CORSConfig represents the CORS configuration
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	MaxAge           int      `mapstructure:"max_age"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// RateLimitConfig represents the rate limiting configuration
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig loads configuration from file. An empty path searches the
// default locations; a missing file leaves defaults and env overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		v.AddConfigPath(InDot)
		v.AddConfigPath(InEtc)
		v.AddConfigPath(InHome)
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set defaults
	setDefaults(&config)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var config Config
	setDefaults(&config)
	return &config
}

// bindEnv registers keys so env overrides work without a config file
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"server.address",
		"database.driver",
		"database.dsn",
		"database.auto_migrate",
		"database.migrations_path",
		"log.level",
		"log.file",
		"broker.driver",
		"broker.kafka.brokers",
		"broker.rabbitmq.url",
		"broker.redis.addr",
		"audit.driver",
		"audit.mongo.uri",
		"governance.sweep_interval",
	} {
		_ = v.BindEnv(key)
	}
}

// setDefaults sets default values for configuration
func setDefaults(config *Config) {
	if config.Server.Address == "" {
		config.Server.Address = ":8080"
	}
	if config.Server.MetricsPath == "" {
		config.Server.MetricsPath = "/metrics"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 30 * time.Second
	}
	if config.Server.IdleTimeout == 0 {
		config.Server.IdleTimeout = 2 * time.Minute
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 15 * time.Second
	}

	if config.API.Auth.UserHeader == "" {
		config.API.Auth.UserHeader = "X-User-ID"
	}
	if config.API.RateLimit.Window == 0 {
		config.API.RateLimit.Window = time.Minute
	}
	if config.API.RateLimit.Requests == 0 {
		config.API.RateLimit.Requests = 600
	}
	if config.API.CORS.MaxAge == 0 {
		config.API.CORS.MaxAge = 86400
	}
	// Set default allowed methods for CORS
	if len(config.API.CORS.AllowedMethods) == 0 {
		config.API.CORS.AllowedMethods = []string{
			"GET", "POST", "PUT", "DELETE", "OPTIONS",
		}
	}
	// Set default allowed headers for CORS
	if len(config.API.CORS.AllowedHeaders) == 0 {
		config.API.CORS.AllowedHeaders = []string{
			"Content-Type", "Authorization", "X-Request-ID", config.API.Auth.UserHeader,
		}
	}

	config.Log.SetDefaults()
	config.Database.setDefaults()
	config.Notify.setDefaults()
	config.Governance.setDefaults()
	config.Broker.setDefaults()
	config.Audit.setDefaults()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("invalid TLS config: cert and key files are required")
		}
	}

	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}

	if err := c.Notify.Validate(); err != nil {
		return fmt.Errorf("invalid notification config: %w", err)
	}

	if err := c.Governance.Validate(); err != nil {
		return fmt.Errorf("invalid governance config: %w", err)
	}

	if err := c.Broker.Validate(); err != nil {
		return fmt.Errorf("invalid broker config: %w", err)
	}

	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("invalid audit config: %w", err)
	}

	return nil
}
