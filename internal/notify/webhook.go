package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"time"

	"qmsgov/internal/config"
	"qmsgov/internal/retry"
	"qmsgov/internal/types"
	"qmsgov/internal/version"

	"go.uber.org/zap"
)

// WebhookChannel posts signed notification payloads to an HTTP endpoint
type WebhookChannel struct {
	config   *config.WebhookConfig
	logger   *zap.Logger
	client   *http.Client
	retryCfg *retry.Config
}

// WebhookPayload represents the standard webhook payload structure
type WebhookPayload struct {
	EventType     string         `json:"event_type"`
	EventID       string         `json:"event_id"`
	Timestamp     time.Time      `json:"timestamp"`
	ChangeEventID string         `json:"change_event_id"`
	Priority      Priority       `json:"priority"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Recipients    []string       `json:"recipients"`
	Deadline      *time.Time     `json:"deadline,omitempty"`
	Data          map[string]any `json:"data"`
}

// NewWebhookChannel creates new webhook channel
func NewWebhookChannel(cfg *config.WebhookConfig, logger *zap.Logger) (*WebhookChannel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			DisableCompression:  true,
			MaxIdleConnsPerHost: 10,
		},
	}

	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	return &WebhookChannel{
		config: cfg,
		logger: logger,
		client: client,
		retryCfg: &retry.Config{
			Enable:          true,
			InitialAttempts: attempts,
			InitialInterval: time.Second,
		},
	}, nil
}

// Type returns the channel type
func (c *WebhookChannel) Type() ChannelType {
	return ChannelWebhook
}

// Send delivers the payload, retrying transport errors and 5xx responses
func (c *WebhookChannel) Send(ctx context.Context, req *Request, to []*types.User) error {
	ensureID(req)

	data := make(map[string]any, len(req.Data)+len(c.config.CommonData))
	maps.Copy(data, c.config.CommonData)
	maps.Copy(data, req.Data)

	recipients := make([]string, 0, len(to))
	for _, u := range to {
		recipients = append(recipients, u.ID)
	}

	payload := WebhookPayload{
		EventType:     "governance." + req.Kind.Template(),
		EventID:       req.ID,
		Timestamp:     req.CreatedAt,
		ChangeEventID: req.ChangeEventID,
		Priority:      req.Priority,
		Title:         req.Title,
		Message:       req.Message,
		Recipients:    recipients,
		Deadline:      req.Deadline,
		Data:          data,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var rejected error
	err = retry.Execute(ctx, c.retryCfg, c.logger, func(ctx context.Context) error {
		status, err := c.post(ctx, &payload, body)
		if err != nil {
			return err
		}
		// Client errors will not succeed on retry
		if status >= 400 && status < 500 {
			rejected = fmt.Errorf("webhook request failed with status %d", status)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return rejected
}

// post sends one delivery attempt. Transport errors and 5xx responses
// are returned as errors; other statuses are returned for the caller.
func (c *WebhookChannel) post(ctx context.Context, payload *WebhookPayload, body []byte) (int, error) {
	method := c.config.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "qmsgov-webhook/"+version.GetInfo().Version)
	req.Header.Set("X-Qmsgov-Event", payload.EventType)
	req.Header.Set("X-Qmsgov-Delivery", payload.EventID)
	if c.config.Secret != "" {
		req.Header.Set("X-Qmsgov-Signature", calculateSignature(body, []byte(c.config.Secret)))
	}

	// Add custom headers from config
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Error("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode >= 500 {
		return resp.StatusCode, fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// calculateSignature returns the hex HMAC-SHA256 of payload
func calculateSignature(payload []byte, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Health reports whether the channel is usable
func (c *WebhookChannel) Health(_ context.Context) error {
	return nil
}
