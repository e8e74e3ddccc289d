package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qmsgov/internal/config"
	"qmsgov/internal/notify/template"
	"qmsgov/internal/types"

	"go.uber.org/zap"
)

// ChannelType represents the type of delivery channel
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelSlack   ChannelType = "slack"
	ChannelWebhook ChannelType = "webhook"
)

var (
	ErrQueueFull = errors.New("notification queue is full")
	ErrStopped   = errors.New("notification manager is stopped")
)

// Channel delivers a request to resolved users
type Channel interface {
	Type() ChannelType
	Send(ctx context.Context, req *Request, to []*types.User) error
	Health(ctx context.Context) error
}

// Manager is the asynchronous delivery sink. Requests are queued,
// recipients resolved through the directory, and each enabled channel
// is called under the rate limit.
type Manager struct {
	config      *config.NotifyConfig
	logger      *zap.Logger
	directory   Directory
	channels    map[ChannelType]Channel
	mu          sync.RWMutex
	rateLimiter *RateLimiter
	tplLoader   *template.Loader
	queue       chan *Request
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewManager creates new notification manager and starts its worker
func NewManager(cfg *config.NotifyConfig, directory Directory, logger *zap.Logger) (*Manager, error) {
	tplLoader, err := template.NewLoader(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize template loader: %w", err)
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:      cfg,
		logger:      logger,
		directory:   directory,
		channels:    make(map[ChannelType]Channel),
		rateLimiter: NewRateLimiter(cfg.RateLimit.Interval, cfg.RateLimit.MaxEvents),
		tplLoader:   tplLoader,
		queue:       make(chan *Request, queueSize),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Initialize enabled channels
	if cfg.Email.Enabled {
		if ch, err := NewEmailChannel(&cfg.Email, tplLoader, logger); err == nil {
			m.channels[ChannelEmail] = ch
		} else {
			logger.Error("Failed to initialize email channel", zap.Error(err))
		}
	}

	if cfg.Slack.Enabled {
		if ch, err := NewSlackChannel(&cfg.Slack, logger); err == nil {
			m.channels[ChannelSlack] = ch
		} else {
			logger.Error("Failed to initialize slack channel", zap.Error(err))
		}
	}

	if cfg.Webhook.Enabled {
		if ch, err := NewWebhookChannel(&cfg.Webhook, logger); err == nil {
			m.channels[ChannelWebhook] = ch
		} else {
			logger.Error("Failed to initialize webhook channel", zap.Error(err))
		}
	}

	// Start notification processor
	m.wg.Add(1)
	go m.processNotifications()

	return m, nil
}

// AddChannel registers or replaces a channel
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Type()] = ch
}

// Send queues the request for delivery
func (m *Manager) Send(_ context.Context, req *Request) error {
	if m.ctx.Err() != nil {
		return ErrStopped
	}
	ensureID(req)

	select {
	case m.queue <- req:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s for change event %s", ErrQueueFull, req.Kind, req.ChangeEventID)
	}
}

// processNotifications handles delivery in background
func (m *Manager) processNotifications() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			// Deliver what is already queued
			for {
				select {
				case req := <-m.queue:
					m.deliver(req)
				default:
					return
				}
			}
		case req := <-m.queue:
			m.deliver(req)
		}
	}
}

// deliver resolves recipients and sends on every channel
func (m *Manager) deliver(req *Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users, err := m.directory.Resolve(ctx, req.Recipients)
	if err != nil {
		m.logger.Error("Failed to resolve notification recipients",
			zap.String("change_event_id", req.ChangeEventID),
			zap.String("kind", string(req.Kind)),
			zap.Error(err))
		return
	}

	m.mu.RLock()
	channels := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.RUnlock()

	for _, ch := range channels {
		key := "global"
		if m.config.RateLimit.PerChannel {
			key = string(ch.Type())
		}
		if m.config.RateLimit.Enabled && !m.rateLimiter.Allow(key) {
			m.logger.Warn("Rate limit exceeded for channel",
				zap.String("type", string(ch.Type())),
				zap.String("change_event_id", req.ChangeEventID))
			continue
		}

		if err := ch.Send(ctx, req, users); err != nil {
			m.logger.Error("Failed to send notification",
				zap.String("type", string(ch.Type())),
				zap.String("change_event_id", req.ChangeEventID),
				zap.String("kind", string(req.Kind)),
				zap.Error(err))
		}
	}
}

// Stop stops accepting requests and waits for queued ones to be delivered
func (m *Manager) Stop() error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timeout waiting for notifications to complete")
	}
}

// Health checks every channel
func (m *Manager) Health(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for t, ch := range m.channels {
		if err := ch.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t, err))
		}
	}
	return errors.Join(errs...)
}

// IsChannelEnabled checks if a channel is enabled
func (m *Manager) IsChannelEnabled(t ChannelType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.channels[t]
	return ok
}
