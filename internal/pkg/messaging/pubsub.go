package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const pubsubScope = "https://www.googleapis.com/auth/pubsub"

// ErrPubSubProjectIDRequired is returned when no project id is configured.
var ErrPubSubProjectIDRequired = errors.New("messaging: pubsub project id is required")

// PubSubConfig configures the Google Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string

	// CredentialsJSON is a service account key. Application default
	// credentials are used when empty.
	CredentialsJSON []byte
	// Endpoint overrides the API endpoint.
	Endpoint string
	// EnableOrdering turns on ordered delivery for messages with an OrderingKey.
	EnableOrdering bool

	// ClientOptions are appended after the options derived above.
	ClientOptions []option.ClientOption
}

// PubSub publishes to Google Pub/Sub topics.
type PubSub struct {
	client   *pubsub.Client
	ordering bool

	mu         sync.Mutex
	closed     bool
	publishers map[string]*pubsub.Publisher
}

// NewPubSub constructs a Pub/Sub publisher.
func NewPubSub(ctx context.Context, cfg PubSubConfig) (*PubSub, error) {
	if cfg.ProjectID == "" {
		return nil, ErrPubSubProjectIDRequired
	}

	opts, err := pubsubClientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: pubsub new client: %w", err)
	}

	return &PubSub{client: c, ordering: cfg.EnableOrdering, publishers: map[string]*pubsub.Publisher{}}, nil
}

func pubsubClientOptions(ctx context.Context, cfg PubSubConfig) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if len(cfg.CredentialsJSON) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, cfg.CredentialsJSON, pubsubScope)
		if err != nil {
			return nil, fmt.Errorf("messaging: pubsub credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	return append(opts, cfg.ClientOptions...), nil
}

// Close flushes and stops publishers, then closes the client.
func (p *PubSub) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pubs := make([]*pubsub.Publisher, 0, len(p.publishers))
	for _, pub := range p.publishers {
		pubs = append(pubs, pub)
	}
	p.publishers = nil
	p.mu.Unlock()

	for _, pub := range pubs {
		pub.Stop()
	}
	return p.client.Close()
}

// Publish sends msg to the destination topic and waits for the server ack.
func (p *PubSub) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	if destination == "" {
		return PublishResult{}, ErrTopicRequired
	}
	if msg.Delay > 0 {
		return PublishResult{}, ErrUnsupported
	}

	pub, err := p.publisher(destination)
	if err != nil {
		return PublishResult{}, err
	}

	m := &pubsub.Message{Data: msg.Body, Attributes: headerMap(msg)}
	if p.ordering {
		m.OrderingKey = msg.OrderingKey
	}
	res := pub.Publish(ctx, m)
	id, err := res.Get(ctx)
	if err != nil {
		return PublishResult{}, fmt.Errorf("messaging: pubsub publish: %w", err)
	}

	return PublishResult{MessageID: id, Topic: destination, Timestamp: time.Now()}, nil
}

func (p *PubSub) publisher(topic string) (*pubsub.Publisher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, io.ErrClosedPipe
	}
	if pub, ok := p.publishers[topic]; ok {
		return pub, nil
	}

	pub := p.client.Publisher(topic)
	pub.EnableMessageOrdering = p.ordering
	p.publishers[topic] = pub
	return pub, nil
}
