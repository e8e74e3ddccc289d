package broker

import (
	"context"
	"sync"
)

// Nop discards every message
type Nop struct{}

// NewNop creates a publisher that discards messages
func NewNop() *Nop { return &Nop{} }

func (Nop) Publish(context.Context, *Message) error { return nil }
func (Nop) Health(context.Context) error            { return nil }
func (Nop) Name() string                            { return "none" }
func (Nop) Close() error                            { return nil }

// Memory keeps published messages in memory. Fail, when set, is
// returned by Publish instead of recording.
type Memory struct {
	mu       sync.Mutex
	messages []*Message
	Fail     func(msg *Message) error
}

// NewMemory creates an in-memory publisher
func NewMemory() *Memory { return &Memory{} }

// Publish records the message
func (m *Memory) Publish(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		if err := m.Fail(msg); err != nil {
			return err
		}
	}
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns the recorded messages for topic, or all when empty
func (m *Memory) Messages(topic string) []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Message, 0, len(m.messages))
	for _, msg := range m.messages {
		if topic == "" || msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

func (m *Memory) Health(context.Context) error { return nil }
func (m *Memory) Name() string                 { return "memory" }
func (m *Memory) Close() error                 { return nil }
