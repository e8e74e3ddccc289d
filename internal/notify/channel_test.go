package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"qmsgov/internal/broker"
	"qmsgov/internal/config"
	ntpl "qmsgov/internal/notify/template"
	"qmsgov/internal/types"
)

func testRequest() *Request {
	a := &types.Approval{ID: "a1", StepNumber: 1, StepName: "Quality review", ApproverRole: "QE",
		DueDate: time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)}
	return ApprovalRequired(testEvent(types.ImpactHigh), a, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestWebhookChannel(t *testing.T) {
	var calls atomic.Int32
	var got WebhookPayload
	var headers http.Header
	var raw []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		raw, _ = io.ReadAll(r.Body)
		headers = r.Header.Clone()
		_ = json.Unmarshal(raw, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch, err := NewWebhookChannel(&config.WebhookConfig{
		Enabled:    true,
		URL:        srv.URL,
		Secret:     "s3cret",
		MaxRetries: 3,
		Headers:    map[string]string{"X-Plant": "north"},
		CommonData: map[string]any{"site": "north"},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	ch.retryCfg.InitialInterval = time.Millisecond

	req := testRequest()
	require.NoError(t, ch.Send(context.Background(), req, []*types.User{{ID: "qe1"}}))

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "governance.approval_required", got.EventType)
	assert.Equal(t, req.ID, got.EventID)
	assert.Equal(t, []string{"qe1"}, got.Recipients)
	assert.Equal(t, "north", got.Data["site"])
	assert.Equal(t, "FAILURE_MODE", got.Data["entity_type"])
	assert.Equal(t, calculateSignature(raw, []byte("s3cret")), headers.Get("X-Qmsgov-Signature"))
	assert.Equal(t, "governance.approval_required", headers.Get("X-Qmsgov-Event"))
	assert.Equal(t, "north", headers.Get("X-Plant"))
}

func TestWebhookChannelClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	ch, err := NewWebhookChannel(&config.WebhookConfig{URL: srv.URL, MaxRetries: 3}, zaptest.NewLogger(t))
	require.NoError(t, err)
	ch.retryCfg.InitialInterval = time.Millisecond

	err = ch.Send(context.Background(), testRequest(), nil)
	assert.ErrorContains(t, err, "status 401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSlackChannel(t *testing.T) {
	var msg SlackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&msg)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewSlackChannel(&config.SlackConfig{Enabled: true}, zaptest.NewLogger(t))
	assert.Error(t, err)

	ch, err := NewSlackChannel(&config.SlackConfig{Enabled: true, WebhookURL: srv.URL, Channel: "#quality"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	req := testRequest()
	require.NoError(t, ch.Send(context.Background(), req, []*types.User{{ID: "qe1", Name: "Quinn"}}))

	assert.Equal(t, "#quality", msg.Channel)
	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, req.Title, att.Title)
	assert.Equal(t, "Approval Required", att.Footer)

	fields := map[string]string{}
	for _, f := range att.Fields {
		fields[f.Title] = f.Value
	}
	assert.Equal(t, "Failure Mode fm-9", fields["Entity"])
	assert.Equal(t, "High", fields["Impact"])
	assert.Equal(t, "Quinn", fields["Recipients"])
}

func TestEmailChannel(t *testing.T) {
	loader, err := ntpl.NewLoader(zaptest.NewLogger(t))
	require.NoError(t, err)

	ch, err := NewEmailChannel(&config.EmailConfig{
		Enabled:    true,
		SMTPServer: "smtp.example.com",
		SMTPPort:   587,
		From:       "QMS <qms@example.com>",
	}, loader, zaptest.NewLogger(t))
	require.NoError(t, err)

	var sentTo []string
	var body string
	ch.send = func(to []string, msg []byte) error {
		sentTo = to
		body = string(msg)
		return nil
	}

	users := []*types.User{
		{ID: "qe1", Email: "Quinn <quinn@example.com>"},
		{ID: "qe2"},
	}
	require.NoError(t, ch.Send(context.Background(), testRequest(), users))

	assert.Equal(t, []string{"quinn@example.com"}, sentTo)
	assert.Contains(t, body, "From: qms@example.com\r\n")
	assert.Contains(t, body, "Subject: [Normal] Approval required: Quality review")
	assert.Contains(t, body, "Decide by")
	assert.Contains(t, body, "2024-03-03T12:00:00Z")

	// Kinds without their own template use the generic one
	sentTo = nil
	rejected := ChangeRejected(testEvent(types.ImpactLow), &types.Approval{StepNumber: 1, StepName: "Review"}, time.Now())
	require.NoError(t, ch.Send(context.Background(), rejected, users))
	assert.NotEmpty(t, sentTo)
	assert.True(t, strings.Contains(body, "Change Rejected"))

	// No addresses means nothing to send
	sentTo = nil
	require.NoError(t, ch.Send(context.Background(), rejected, []*types.User{{ID: "qe2"}}))
	assert.Nil(t, sentTo)

	_, err = NewEmailChannel(&config.EmailConfig{Enabled: true, SMTPServer: "smtp", From: "nobody"}, loader, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestSinks(t *testing.T) {
	mem := broker.NewMemory()
	rec := NewRecorder()
	sink := MultiSink{NewBrokerSink(mem, "qms.notifications"), rec, NewLogSink(zaptest.NewLogger(t))}

	req := testRequest()
	require.NoError(t, sink.Send(context.Background(), req))
	assert.NotEmpty(t, req.ID)

	msgs := mem.Messages("qms.notifications")
	require.Len(t, msgs, 1)
	assert.Equal(t, "ce-1", msgs[0].Key)
	assert.Equal(t, "APPROVAL_REQUIRED", msgs[0].Headers["notification-kind"])

	var decoded Request
	require.NoError(t, json.Unmarshal(msgs[0].Value, &decoded))
	assert.Equal(t, req.ID, decoded.ID)

	rec.Err = assert.AnError
	assert.ErrorIs(t, sink.Send(context.Background(), testRequest()), assert.AnError)
	assert.Len(t, rec.Requests(KindApprovalRequired), 2)
	assert.Empty(t, rec.Requests(KindChangeApproved))
	rec.Reset()
	assert.Empty(t, rec.Requests(""))
}
