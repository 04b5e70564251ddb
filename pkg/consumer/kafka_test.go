package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErr  error
	committed []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return m, nil
	}
	err := f.fetchErr
	f.mu.Unlock()
	if err != nil {
		return kafka.Message{}, err
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestConsumeDeliversInOrder(t *testing.T) {
	fr := &fakeReader{queue: []kafka.Message{
		{Topic: "bomet.scores", Partition: 2, Offset: 7, Key: []byte("a"), Value: []byte("1"),
			Headers: []kafka.Header{{Key: "event-type", Value: []byte("score.submitted")}}},
		{Topic: "bomet.scores", Partition: 2, Offset: 8, Key: []byte("b"), Value: []byte("2")},
	}}
	c := &KafkaConsumer{reader: fr}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, _ := c.Consume(ctx)

	first := <-messages
	assert.Equal(t, int64(7), first.Offset)
	assert.Equal(t, 2, first.Partition)
	assert.Equal(t, "a", string(first.Key))
	assert.Equal(t, "score.submitted", first.Headers["event-type"])

	second := <-messages
	assert.Equal(t, int64(8), second.Offset)
	assert.Nil(t, second.Headers)

	require.NoError(t, c.Commit(ctx, second))
	require.Len(t, fr.committed, 1)
	assert.Equal(t, int64(8), fr.committed[0].Offset)

	cancel()
	_, open := <-messages
	assert.False(t, open)
}

func TestConsumeReportsFetchFailure(t *testing.T) {
	c := &KafkaConsumer{reader: &fakeReader{fetchErr: errors.New("group coordinator not available")}}

	messages, errs := c.Consume(context.Background())
	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "group coordinator not available")
	case <-time.After(time.Second):
		t.Fatal("no error reported")
	}
	_, open := <-messages
	assert.False(t, open)
}

func TestConsumeStopsQuietlyOnCancel(t *testing.T) {
	c := &KafkaConsumer{reader: &fakeReader{}}
	ctx, cancel := context.WithCancel(context.Background())
	messages, errs := c.Consume(ctx)
	cancel()

	_, open := <-messages
	assert.False(t, open)
	err, open := <-errs
	assert.False(t, open)
	assert.NoError(t, err)
}

func TestNewKafkaConsumer(t *testing.T) {
	c := NewKafkaConsumer(Config{Brokers: []string{"localhost:9092"}, Topic: "bomet.scores", GroupID: "bomet-archiver"})
	require.NotNil(t, c.reader)
	assert.NoError(t, c.Close())
}
