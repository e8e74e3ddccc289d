package notify

import (
	"context"
	"errors"
	"sync"

	"qmsgov/internal/broker"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink accepts notification requests for delivery
type Sink interface {
	Send(ctx context.Context, req *Request) error
}

// MultiSink fans a request out to every sink
type MultiSink []Sink

// Send delivers to all sinks and joins their errors
func (m MultiSink) Send(ctx context.Context, req *Request) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BrokerSink publishes requests for external delivery services
type BrokerSink struct {
	publisher broker.Publisher
	topic     string
}

// NewBrokerSink creates new broker sink
func NewBrokerSink(publisher broker.Publisher, topic string) *BrokerSink {
	return &BrokerSink{publisher: publisher, topic: topic}
}

// Send publishes the request keyed by change event
func (s *BrokerSink) Send(ctx context.Context, req *Request) error {
	ensureID(req)
	msg, err := broker.NewJSONMessage(s.topic, req.ChangeEventID, req)
	if err != nil {
		return err
	}
	msg.Headers["notification-kind"] = string(req.Kind)
	msg.Headers["priority"] = string(req.Priority)
	return s.publisher.Publish(ctx, msg)
}

// LogSink writes requests to the log. It is used when no delivery
// channel is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates new log sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Send logs the request
func (s *LogSink) Send(_ context.Context, req *Request) error {
	s.logger.Info("Notification",
		zap.String("change_event_id", req.ChangeEventID),
		zap.String("kind", string(req.Kind)),
		zap.String("priority", string(req.Priority)),
		zap.Strings("roles", req.Recipients.Roles),
		zap.Strings("user_ids", req.Recipients.UserIDs),
		zap.String("title", req.Title))
	return nil
}

// Recorder keeps every request in memory
type Recorder struct {
	mu       sync.Mutex
	requests []*Request
	Err      error
}

// NewRecorder creates new recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send records the request, then returns r.Err
func (r *Recorder) Send(_ context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return r.Err
}

// Requests returns recorded requests of kind, or all when kind is empty
func (r *Recorder) Requests(kind Kind) []*Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Request, 0, len(r.requests))
	for _, req := range r.requests {
		if kind == "" || req.Kind == kind {
			out = append(out, req)
		}
	}
	return out
}

// Reset drops the recorded requests
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = nil
}

func ensureID(req *Request) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
}
