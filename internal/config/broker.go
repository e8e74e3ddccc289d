package config

import (
	"fmt"
	"time"
)

// BrokerConfig selects the message broker used for publishing events
type BrokerConfig struct {
	Driver   string         `mapstructure:"driver"` // none, kafka, rabbitmq, redis
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// KafkaConfig represents kafka writer settings
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RabbitMQConfig represents rabbitmq settings
type RabbitMQConfig struct {
	URL               string        `mapstructure:"url"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	Vhost             string        `mapstructure:"vhost"`
	Exchange          string        `mapstructure:"exchange"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// RedisConfig represents redis settings
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// Streams publishes with XADD instead of PUBLISH
	Streams bool `mapstructure:"streams"`
}

func (c *BrokerConfig) setDefaults() {
	if c.Driver == "" {
		c.Driver = "none"
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 10 * time.Millisecond
	}
	if c.Kafka.WriteTimeout == 0 {
		c.Kafka.WriteTimeout = 10 * time.Second
	}
	if c.Kafka.RequiredAcks == 0 {
		c.Kafka.RequiredAcks = 1
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "qmsgov"
	}
	if c.RabbitMQ.HeartbeatInterval == 0 {
		c.RabbitMQ.HeartbeatInterval = 10 * time.Second
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
}

// Validate validates broker configuration
func (c *BrokerConfig) Validate() error {
	switch c.Driver {
	case "none":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("at least one kafka broker is required")
		}
	case "rabbitmq":
		if c.RabbitMQ.URL == "" {
			return fmt.Errorf("rabbitmq url is required")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required")
		}
	default:
		return fmt.Errorf("unsupported broker driver: %s", c.Driver)
	}
	return nil
}
