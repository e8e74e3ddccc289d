package broker

import (
	"context"
	"fmt"

	"qmsgov/internal/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher publishes messages with a kafka writer
type KafkaPublisher struct {
	cfg    *config.KafkaConfig
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates new kafka publisher
func NewKafkaPublisher(cfg *config.KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka configuration is nil or empty")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		AllowAutoTopicCreation: true,
	}

	logger.Info("Kafka publisher created", zap.Strings("brokers", cfg.Brokers))
	return &KafkaPublisher{cfg: cfg, writer: writer, logger: logger}, nil
}

// Publish writes a message keyed by msg.Key
func (p *KafkaPublisher) Publish(ctx context.Context, msg *Message) error {
	headers := make([]kafka.Header, 0, len(msg.Headers)+1)
	headers = append(headers, kafka.Header{Key: "message-id", Value: []byte(msg.ID)})
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: headers,
		Time:    msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s failed: %w", msg.Topic, err)
	}
	return nil
}

// Health dials the first broker and reads the controller
func (p *KafkaPublisher) Health(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", p.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka connection error: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Controller(); err != nil {
		return fmt.Errorf("kafka controller lookup failed: %w", err)
	}
	return nil
}

// Name returns the driver name
func (p *KafkaPublisher) Name() string {
	return "kafka"
}

// Close flushes pending writes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
