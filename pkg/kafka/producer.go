package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher publishes keyed JSON events
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event interface{}) error
	Close()
}

// ProducerConfig holds producer settings
type ProducerConfig struct {
	Brokers     []string
	ClientID    string
	TopicPrefix string
}

// Producer publishes events through franz-go
type Producer struct {
	client *kgo.Client
	prefix string
}

// NewProducer creates a producer and verifies broker connectivity
func NewProducer(ctx context.Context, cfg *ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka producer requires at least one broker")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach kafka brokers: %w", err)
	}

	return &Producer{client: client, prefix: cfg.TopicPrefix}, nil
}

// Publish marshals event to JSON and produces it synchronously
func (p *Producer) Publish(ctx context.Context, topic, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", topic, err)
	}

	record := &kgo.Record{
		Topic: p.prefix + topic,
		Key:   []byte(key),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", record.Topic, err)
	}
	return nil
}

// Close flushes and closes the client
func (p *Producer) Close() {
	p.client.Close()
}

// NoopPublisher drops events; used when Kafka is disabled
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that does nothing
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

// Publish discards the event
func (NoopPublisher) Publish(ctx context.Context, topic, key string, event interface{}) error {
	return nil
}

// Close is a no-op
func (NoopPublisher) Close() {}
