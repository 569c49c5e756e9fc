package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesKeyedMessages(t *testing.T) {
	writer := &fakeWriter{}
	publisher := NewKafkaPublisher(writer, time.Second, nil)

	event := Event{
		ID:       "e-1",
		Type:     EventTicketStatusChanged,
		TicketID: "t-42",
		Version:  3,
		Payload:  TicketStatusChangedPayload{OldStatus: "open", NewStatus: "in_progress"},
	}
	require.NoError(t, publisher.Handle(context.Background(), event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, []byte("t-42"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte(EventTicketStatusChanged), msg.Headers[0].Value)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "ticket_status_changed", decoded["type"])
	assert.Equal(t, float64(3), decoded["version"])
	assert.Equal(t, "in_progress", decoded["payload"].(map[string]any)["new_status"])
}

func TestKafkaPublisherReturnsWriteErrors(t *testing.T) {
	boom := errors.New("broker unreachable")
	publisher := NewKafkaPublisher(&fakeWriter{err: boom}, time.Second, nil)

	err := publisher.Handle(context.Background(), Event{Type: EventTicketCreated, TicketID: "t-1"})
	assert.ErrorIs(t, err, boom)
}

func TestKafkaPublisherClose(t *testing.T) {
	writer := &fakeWriter{}
	publisher := NewKafkaPublisher(writer, 0, nil)

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
	require.NoError(t, publisher.Close())
	assert.NoError(t, publisher.Handle(context.Background(), Event{Type: EventTicketCreated}))
	assert.Empty(t, writer.messages)
}

type stuckWriter struct{}

func (stuckWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stuckWriter) Close() error { return nil }

func TestKafkaPublisherGivesUpAfterWriteTimeout(t *testing.T) {
	publisher := NewKafkaPublisher(stuckWriter{}, 50*time.Millisecond, nil)

	start := time.Now()
	err := publisher.Handle(context.Background(), Event{Type: EventTicketCreated, TicketID: "t-1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
