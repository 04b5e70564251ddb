// Package consumer reads messages from a Kafka consumer group with manual
// offset commits.
package consumer

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Message represents a message consumed from Kafka
type Message struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	raw       kafka.Message
}

// Consumer defines the interface for consuming messages from Kafka
type Consumer interface {
	// Consume delivers messages until ctx ends or fetching fails.
	Consume(ctx context.Context) (<-chan Message, <-chan error)

	// Commit marks msg, and everything before it on its partition, as done.
	Commit(ctx context.Context, msg Message) error

	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer implements Consumer with a kafka-go Reader.
type KafkaConsumer struct {
	reader messageReader
}

// Config holds Kafka consumer configuration
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

func NewKafkaConsumer(cfg Config) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.GroupID,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.FirstOffset,
		}),
	}
}

func (c *KafkaConsumer) Consume(ctx context.Context) (<-chan Message, <-chan error) {
	messages := make(chan Message)
	errs := make(chan error, 1)

	go func() {
		defer close(messages)
		defer close(errs)

		for {
			m, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errs <- fmt.Errorf("failed to fetch message: %w", err)
				return
			}

			select {
			case messages <- fromKafka(m):
			case <-ctx.Done():
				return
			}
		}
	}()

	return messages, errs
}

func fromKafka(m kafka.Message) Message {
	msg := Message{
		Key:       m.Key,
		Value:     m.Value,
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		raw:       m,
	}
	if len(m.Headers) > 0 {
		msg.Headers = make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}

func (c *KafkaConsumer) Commit(ctx context.Context, msg Message) error {
	return c.reader.CommitMessages(ctx, msg.raw)
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
