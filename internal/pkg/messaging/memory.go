package messaging

import (
	"context"
	"io"
	"slices"
	"strconv"
	"sync"
	"time"
)

const defaultMemoryCapacity = 1000

// Published is a message accepted by the memory driver.
type Published struct {
	Destination string
	Message     OutgoingMessage
	At          time.Time
}

// Memory is an in-process Messaging that keeps the most recent messages.
// It backs local development and tests.
type Memory struct {
	mu       sync.Mutex
	capacity int
	seq      int
	messages []Published
	closed   bool
}

// NewMemory returns a Memory keeping at most capacity messages (1000 when <= 0).
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	if destination == "" {
		return PublishResult{}, ErrTopicRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return PublishResult{}, io.ErrClosedPipe
	}

	now := time.Now()
	m.seq++
	m.messages = append(m.messages, Published{Destination: destination, Message: msg, At: now})
	if over := len(m.messages) - m.capacity; over > 0 {
		m.messages = slices.Delete(m.messages, 0, over)
	}

	return PublishResult{MessageID: strconv.Itoa(m.seq), Topic: destination, Timestamp: now}, nil
}

// Messages returns a snapshot of retained messages, oldest first.
func (m *Memory) Messages() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.messages)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
