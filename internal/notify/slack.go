package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"qmsgov/internal/config"
	ntpl "qmsgov/internal/notify/template"
	"qmsgov/internal/types"

	"go.uber.org/zap"
)

// SlackChannel posts notifications to an incoming webhook
type SlackChannel struct {
	config *config.SlackConfig
	logger *zap.Logger
	client *http.Client
}

// SlackMessage represents Slack message
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents Slack attachment
type SlackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer"`
	Timestamp int64        `json:"ts"`
}

// SlackField represents Slack field
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackChannel creates new slack channel
func NewSlackChannel(cfg *config.SlackConfig, logger *zap.Logger) (*SlackChannel, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("slack channel is disabled")
	}

	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("slack webhook URL is required")
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:    10,
			IdleConnTimeout: 30 * time.Second,
		},
	}

	return &SlackChannel{
		config: cfg,
		logger: logger,
		client: client,
	}, nil
}

// Type returns the channel type
func (c *SlackChannel) Type() ChannelType {
	return ChannelSlack
}

// Send posts the request to the configured channel, mentioning recipients by name
func (c *SlackChannel) Send(ctx context.Context, req *Request, to []*types.User) error {
	msg := c.buildMessage(req, to)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Error("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack API error: status=%d, body=%s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *SlackChannel) buildMessage(req *Request, to []*types.User) *SlackMessage {
	fields := []SlackField{
		{Title: "Change Event", Value: req.ChangeEventID, Short: true},
		{Title: "Priority", Value: ntpl.Title(string(req.Priority)), Short: true},
	}
	if v, ok := req.Data["entity_type"].(string); ok && v != "" {
		fields = append(fields, SlackField{Title: "Entity", Value: ntpl.Title(v) + " " + fmt.Sprint(req.Data["entity_id"]), Short: true})
	}
	if v, ok := req.Data["impact_level"].(string); ok && v != "" {
		fields = append(fields, SlackField{Title: "Impact", Value: ntpl.Title(v), Short: true})
	}
	if req.Deadline != nil {
		fields = append(fields, SlackField{Title: "Decide By", Value: req.Deadline.UTC().Format(time.RFC3339), Short: true})
	}
	if len(to) > 0 {
		names := make([]string, 0, len(to))
		for _, u := range to {
			names = append(names, u.Name)
		}
		fields = append(fields, SlackField{Title: "Recipients", Value: strings.Join(names, ", ")})
	}

	return &SlackMessage{
		Channel:   c.config.Channel,
		Username:  c.config.Username,
		IconEmoji: c.config.IconEmoji,
		Attachments: []SlackAttachment{{
			Color:     priorityColor(req.Priority),
			Title:     req.Title,
			Text:      req.Message,
			Fields:    fields,
			Footer:    ntpl.Title(string(req.Kind)),
			Timestamp: req.CreatedAt.Unix(),
		}},
	}
}

func priorityColor(p Priority) string {
	switch p {
	case PriorityUrgent:
		return "danger"
	case PriorityHigh:
		return "warning"
	case PriorityLow:
		return "#cccccc"
	default:
		return "good"
	}
}

// Health reports whether the channel is usable
func (c *SlackChannel) Health(_ context.Context) error {
	return nil
}
