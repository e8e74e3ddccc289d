package broker

import (
	"context"
	"fmt"
	"sync"

	"qmsgov/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQPublisher publishes messages to a topic exchange.
// The topic is used as routing key.
type RabbitMQPublisher struct {
	cfg    *config.RabbitMQConfig
	conn   *amqp.Connection
	ch     *amqp.Channel
	mu     sync.Mutex
	logger *zap.Logger
}

// NewRabbitMQPublisher connects and declares the exchange
func NewRabbitMQPublisher(cfg *config.RabbitMQConfig, logger *zap.Logger) (*RabbitMQPublisher, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq configuration is nil or empty")
	}

	url := fmt.Sprintf("amqp://%s:%s@%s/%s", cfg.Username, cfg.Password, cfg.URL, cfg.Vhost)
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: cfg.HeartbeatInterval,
		Vhost:     cfg.Vhost,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	logger.Info("Connected to RabbitMQ", zap.String("exchange", cfg.Exchange))
	return &RabbitMQPublisher{cfg: cfg, conn: conn, ch: ch, logger: logger}, nil
}

// Publish sends a persistent message; channels are not safe for
// concurrent publishing so calls are serialized
func (p *RabbitMQPublisher) Publish(ctx context.Context, msg *Message) error {
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.PublishWithContext(ctx, p.cfg.Exchange, msg.Topic, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     msg.ID,
		CorrelationId: msg.Key,
		Timestamp:     msg.Timestamp,
		Headers:       headers,
		Body:          msg.Value,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish to %s failed: %w", msg.Topic, err)
	}
	return nil
}

// Health reports whether the connection is open
func (p *RabbitMQPublisher) Health(_ context.Context) error {
	if p.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}

// Name returns the driver name
func (p *RabbitMQPublisher) Name() string {
	return "rabbitmq"
}

// Close closes the channel and connection
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.Close(); err != nil {
		p.logger.Warn("Failed to close rabbitmq channel", zap.Error(err))
	}
	if p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}
