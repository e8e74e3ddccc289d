package broker

import (
	"context"
	"fmt"

	"qmsgov/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher publishes with PUBLISH, or XADD when streams are enabled
type RedisPublisher struct {
	cfg    *config.RedisConfig
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPublisher creates new redis publisher
func NewRedisPublisher(cfg *config.RedisConfig, logger *zap.Logger) (*RedisPublisher, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("redis configuration is nil or empty")
	}

	rc := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		DialTimeout:  cfg.DialTimeout,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis connect error: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.Addr), zap.Bool("streams", cfg.Streams))
	return &RedisPublisher{cfg: cfg, client: rc, logger: logger}, nil
}

// Publish sends the message to the channel or stream named by the topic
func (p *RedisPublisher) Publish(ctx context.Context, msg *Message) error {
	var err error
	if p.cfg.Streams {
		err = p.client.XAdd(ctx, &redis.XAddArgs{
			Stream: msg.Topic,
			Values: map[string]any{
				"id":    msg.ID,
				"key":   msg.Key,
				"value": msg.Value,
			},
		}).Err()
	} else {
		err = p.client.Publish(ctx, msg.Topic, msg.Value).Err()
	}
	if err != nil {
		return fmt.Errorf("redis publish to %s failed: %w", msg.Topic, err)
	}
	return nil
}

// Health pings the server
func (p *RedisPublisher) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Name returns the driver name
func (p *RedisPublisher) Name() string {
	return "redis"
}

// Close closes the client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
