package messaging

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrUnsupported is returned when a feature is not supported by the selected broker.
	ErrUnsupported = errors.New("messaging: unsupported operation")
	// ErrTopicRequired is returned when Publish is called without a destination.
	ErrTopicRequired = errors.New("messaging: destination is required")
)

// Messaging is a broker client that can publish messages and be closed.
type Messaging interface {
	io.Closer
	Publisher
}

// Publisher publishes messages to a destination (topic or subject).
type Publisher interface {
	Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error)
}

// OutgoingMessage is a broker-agnostic message to be published.
type OutgoingMessage struct {
	// Body is the message payload.
	Body []byte

	// Key is used by Kafka for partitioning.
	Key []byte

	// Headers support duplicate keys and binary values.
	Headers []Header

	// Attributes are string attributes for brokers that model them (Pub/Sub).
	Attributes map[string]string

	// OrderingKey is used by Google Pub/Sub.
	OrderingKey string

	// Delay requests deferred delivery where the broker supports it (NSQ).
	Delay time.Duration
}

// Header is a key/value pair used for message headers.
type Header struct {
	Key   string
	Value []byte
}

// PublishResult carries optional broker-specific publish metadata.
type PublishResult struct {
	MessageID string
	Topic     string
	Timestamp time.Time
}

// headerMap flattens headers and attributes into string pairs for brokers
// that only carry string metadata. Attributes win on key collision.
func headerMap(msg OutgoingMessage) map[string]string {
	if len(msg.Headers) == 0 && len(msg.Attributes) == 0 {
		return nil
	}
	out := make(map[string]string, len(msg.Headers)+len(msg.Attributes))
	for _, h := range msg.Headers {
		if h.Key != "" {
			out[h.Key] = string(h.Value)
		}
	}
	for k, v := range msg.Attributes {
		out[k] = v
	}
	return out
}
