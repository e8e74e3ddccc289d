package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"qmsgov/internal/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is one event published to the broker
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Key       string            `json:"key,omitempty"`
	Value     []byte            `json:"value"`
	Headers   map[string]string `json:"headers,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewJSONMessage encodes v as the message value
func NewJSONMessage(topic, key string, v any) (*Message, error) {
	value, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return &Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Key:       key,
		Value:     value,
		Headers:   map[string]string{"content-type": "application/json"},
		Timestamp: time.Now().UTC(),
	}, nil
}

// Publisher publishes messages to a broker
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
	Health(ctx context.Context) error
	Name() string
	Close() error
}

// New creates the publisher selected by cfg.Driver
func New(cfg *config.BrokerConfig, logger *zap.Logger) (Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid broker config: %w", err)
	}

	switch cfg.Driver {
	case "kafka":
		return NewKafkaPublisher(&cfg.Kafka, logger)
	case "rabbitmq":
		return NewRabbitMQPublisher(&cfg.RabbitMQ, logger)
	case "redis":
		return NewRedisPublisher(&cfg.Redis, logger)
	default:
		logger.Info("Message broker disabled")
		return NewNop(), nil
	}
}
