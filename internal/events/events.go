// Package events publishes ingestion notifications for downstream
// consumers (report generation, challenge evaluation).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// UsageIngested describes one processed usage batch.
type UsageIngested struct {
	UserID    uint      `json:"user_id"`
	Submitted int       `json:"submitted"`
	Accepted  int       `json:"accepted"`
	NightMode int       `json:"night_mode"`
	At        time.Time `json:"at"`
}

// Publisher is implemented by every event sink.
type Publisher interface {
	PublishUsageIngested(ctx context.Context, ev UsageIngested) error
	Close() error
}

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DefaultPublishTimeout bounds one publish when no timeout is given.
const DefaultPublishTimeout = 2 * time.Second

// KafkaPublisher writes events as JSON, keyed by user id so one user's
// batches stay ordered within a partition. Each publish gives up after
// timeout so a slow or unreachable broker cannot hold up the caller.
type KafkaPublisher struct {
	w       MessageWriter
	timeout time.Duration
}

// NewKafkaPublisher flushes each event on its own; the writer's default
// one second batch window would otherwise delay every ingest response.
func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration) *KafkaPublisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		WriteTimeout: timeout,
	}, timeout)
}

func NewKafkaPublisherWithWriter(w MessageWriter, timeout time.Duration) *KafkaPublisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &KafkaPublisher{w: w, timeout: timeout}
}

func (p *KafkaPublisher) PublishUsageIngested(ctx context.Context, ev UsageIngested) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal usage event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(ev.UserID), 10)),
		Value: body,
		Time:  ev.At,
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write usage event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Noop discards events; used when no brokers are configured.
type Noop struct{}

func (Noop) PublishUsageIngested(context.Context, UsageIngested) error { return nil }
func (Noop) Close() error { return nil }
