// Package producer publishes keyed messages to Kafka.
package producer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is one record to publish. Messages with the same key land on the
// same partition, so their order is kept.
type Message struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Result is the outcome of one publish
type Result struct {
	Error error
}

// Producer defines the interface for publishing messages to Kafka
type Producer interface {
	// PublishAsync sends msg and reports the broker's acknowledgement on the
	// returned channel.
	PublishAsync(ctx context.Context, msg Message) <-chan Result

	Close() error
}

// Publish sends msg and waits for the acknowledgement.
func Publish(ctx context.Context, p Producer, msg Message) error {
	select {
	case res := <-p.PublishAsync(ctx, msg):
		return res.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer implements Producer with a kafka-go Writer.
type KafkaProducer struct {
	writer messageWriter
}

// Config holds Kafka producer configuration
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// NewKafkaProducer hashes keys to partitions and waits for all in-sync
// replicas.
func NewKafkaProducer(cfg Config) *KafkaProducer {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: cfg.BatchTimeout,
		},
	}
}

func (p *KafkaProducer) PublishAsync(ctx context.Context, msg Message) <-chan Result {
	results := make(chan Result, 1)

	go func() {
		defer close(results)
		results <- Result{Error: p.writer.WriteMessages(ctx, toKafka(msg))}
	}()

	return results
}

func toKafka(msg Message) kafka.Message {
	km := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
	}
	for k, v := range msg.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return km
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
