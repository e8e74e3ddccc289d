package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"qmsgov/internal/config"
	ntpl "qmsgov/internal/notify/template"
	"qmsgov/internal/types"

	"go.uber.org/zap"
)

// EmailChannel delivers notifications over SMTP to the resolved users
type EmailChannel struct {
	config    *config.EmailConfig
	logger    *zap.Logger
	tplLoader *ntpl.Loader
	send      func(to []string, msg []byte) error
}

// NewEmailChannel creates new email channel
func NewEmailChannel(cfg *config.EmailConfig, loader *ntpl.Loader, logger *zap.Logger) (*EmailChannel, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("email channel is disabled")
	}
	if cfg.SMTPServer == "" {
		return nil, fmt.Errorf("smtp server is required")
	}
	if !strings.Contains(cfg.From, "@") {
		return nil, fmt.Errorf("invalid from address: %s", cfg.From)
	}

	ch := &EmailChannel{
		config:    cfg,
		logger:    logger,
		tplLoader: loader,
	}
	ch.send = ch.sendSMTP
	return ch, nil
}

// Type returns the channel type
func (c *EmailChannel) Type() ChannelType {
	return ChannelEmail
}

// Send renders the kind's template and mails it to every user with an address
func (c *EmailChannel) Send(_ context.Context, req *Request, to []*types.User) error {
	addrs := make([]string, 0, len(to))
	for _, u := range to {
		if u.Email != "" {
			addrs = append(addrs, u.Email)
		}
	}
	if len(addrs) == 0 {
		c.logger.Debug("No email recipients",
			zap.String("change_event_id", req.ChangeEventID),
			zap.String("kind", string(req.Kind)))
		return nil
	}

	tmpl, err := c.tplLoader.GetTemplate(ntpl.Email, req.Kind.Template())
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}

	var content bytes.Buffer
	if err := tmpl.Execute(&content, req); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	subject := fmt.Sprintf("[%s] %s", ntpl.Title(string(req.Priority)), req.Title)
	msg := buildEmailMessage(c.config.From, addrs, subject, content.String())
	if err := c.send(cleanEmailAddresses(addrs), msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// Health reports whether the channel is usable
func (c *EmailChannel) Health(_ context.Context) error {
	return nil
}

func (c *EmailChannel) sendSMTP(to []string, msg []byte) error {
	auth := smtp.PlainAuth("", c.config.Username, c.config.Password, c.config.SMTPServer)
	addr := fmt.Sprintf("%s:%d", c.config.SMTPServer, c.config.SMTPPort)

	if !c.config.UseTLS {
		return smtp.SendMail(addr, auth, cleanEmailAddress(c.config.From), to, msg)
	}

	conn, err := tls.Dial("tcp", addr, &tls.Config{
		ServerName: c.config.SMTPServer,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("failed to create TLS connection: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, c.config.SMTPServer)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if err = client.Auth(auth); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	from := cleanEmailAddress(c.config.From)
	if err = client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM failed for %s: %w", from, err)
	}
	for _, rcpt := range to {
		if err = client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO failed for %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close message writer: %w", err)
	}
	return client.Quit()
}

// buildEmailMessage builds email message
func buildEmailMessage(from string, to []string, subject, body string) []byte {
	var msg bytes.Buffer

	headers := [][2]string{
		{"From", cleanEmailAddress(from)},
		{"To", strings.Join(cleanEmailAddresses(to), ", ")},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
		{"X-Mailer", "qmsgov"},
		{"Date", time.Now().Format(time.RFC1123Z)},
	}
	for _, h := range headers {
		fmt.Fprintf(&msg, "%s: %s\r\n", h[0], h[1])
	}

	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	return msg.Bytes()
}

// cleanEmailAddress cleans email address by removing display name and angle brackets
func cleanEmailAddress(addr string) string {
	if idx := strings.LastIndex(addr, "<"); idx >= 0 {
		return strings.Trim(addr[idx:], "<>")
	}
	return addr
}

func cleanEmailAddresses(addrs []string) []string {
	cleaned := make([]string, len(addrs))
	for i, addr := range addrs {
		cleaned[i] = cleanEmailAddress(addr)
	}
	return cleaned
}
