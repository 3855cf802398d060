package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesKeyedJSON(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaPublisherWithWriter(w, time.Second)
	at := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)

	err := p.PublishUsageIngested(context.Background(), UsageIngested{UserID: 42, Submitted: 3, Accepted: 2, NightMode: 1, At: at})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	assert.Equal(t, "42", string(w.msgs[0].Key))
	var got UsageIngested
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, 2, got.Accepted)
	assert.True(t, at.Equal(got.At))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaPublisherWithWriter(&recordingWriter{err: boom}, time.Second)

	err := p.PublishUsageIngested(context.Background(), UsageIngested{UserID: 1})
	assert.ErrorIs(t, err, boom)
}

// stalledWriter blocks like a writer whose brokers never answer.
type stalledWriter struct{}

func (stalledWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledWriter) Close() error { return nil }

func TestKafkaPublisherGivesUpAfterTimeout(t *testing.T) {
	p := NewKafkaPublisherWithWriter(stalledWriter{}, 50*time.Millisecond)

	start := time.Now()
	err := p.PublishUsageIngested(context.Background(), UsageIngested{UserID: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewKafkaPublisherWithWriterDefaultsTimeout(t *testing.T) {
	p := NewKafkaPublisherWithWriter(&recordingWriter{}, 0)
	assert.Equal(t, DefaultPublishTimeout, p.timeout)
}
