package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrKafkaBrokersRequired is returned when no Kafka brokers are configured.
var ErrKafkaBrokersRequired = errors.New("messaging: kafka brokers are required")

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers []string

	// BatchTimeout bounds how long the writer waits to fill a batch.
	BatchTimeout time.Duration
	// RequiredAcks is 0 (none), 1 (leader) or -1 (all). Defaults to leader.
	RequiredAcks int
	// Transport overrides the default transport (TLS, SASL).
	Transport kafka.RoundTripper
}

// Kafka publishes through a single kafka-go writer; the topic is set per message.
type Kafka struct {
	writer *kafka.Writer

	mu     sync.Mutex
	closed bool
}

// NewKafka constructs a Kafka publisher. No connection is made until the first publish.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrKafkaBrokersRequired
	}

	acks := kafka.RequireOne
	switch cfg.RequiredAcks {
	case 0:
		// keep leader acks as default
	case -1:
		acks = kafka.RequireAll
	}

	batch := cfg.BatchTimeout
	if batch <= 0 {
		batch = 10 * time.Millisecond
	}

	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			BatchTimeout:           batch,
			RequiredAcks:           acks,
			AllowAutoTopicCreation: true,
			Transport:              cfg.Transport,
		},
	}, nil
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.mu.Unlock()

	return k.writer.Close()
}

// Publish writes msg to the destination topic. Messages with the same Key land on the same partition.
func (k *Kafka) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	if destination == "" {
		return PublishResult{}, ErrTopicRequired
	}
	if msg.Delay > 0 {
		return PublishResult{}, ErrUnsupported
	}
	if k.isClosed() {
		return PublishResult{}, io.ErrClosedPipe
	}

	kmsg := kafka.Message{
		Topic: destination,
		Key:   msg.Key,
		Value: msg.Body,
		Time:  time.Now(),
	}
	for key, value := range headerMap(msg) {
		kmsg.Headers = append(kmsg.Headers, kafka.Header{Key: key, Value: []byte(value)})
	}

	if err := k.writer.WriteMessages(ctx, kmsg); err != nil {
		return PublishResult{}, fmt.Errorf("messaging: kafka publish: %w", err)
	}

	return PublishResult{Topic: destination, Timestamp: kmsg.Time}, nil
}

func (k *Kafka) isClosed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}
