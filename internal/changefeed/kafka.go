package changefeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"bidding-marketplace/internal/notification"
	"bidding-marketplace/utils"

	"github.com/segmentio/kafka-go"
)

//go:generate mockgen -source=kafka.go -destination=mock_kafka.go -package=changefeed

// MessageWriter is the part of *kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader is the part of *kafka.Reader the consumer uses
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter builds a writer that hashes on the message key, so every change
// of one bid lands on the same partition and keeps its order.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewReader builds a consumer group reader
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
}

// KafkaPublisher is a Sink writing events to a topic keyed by bid id
type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev notification.Event) error {
	payload, err := notification.EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("changefeed: %w - encode %s", err, ev.BidID)
	}
	msg := kafka.Message{
		Key:   []byte(ev.BidID),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("changefeed: %w - write %s", err, ev.BidID)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer reads change events and hands them to a Sink, committing
// each message once the sink has accepted it. Delivery is at least once: a
// message the sink refuses is retried in place, holding back its partition.
type KafkaConsumer struct {
	reader    MessageReader
	sink      Sink
	readDelay time.Duration
	retryBase time.Duration
	retryMax  time.Duration
}

func NewKafkaConsumer(reader MessageReader, sink Sink) *KafkaConsumer {
	return &KafkaConsumer{
		reader:    reader,
		sink:      sink,
		readDelay: 500 * time.Millisecond,
		retryBase: 200 * time.Millisecond,
		retryMax:  30 * time.Second,
	}
}

// Run consumes until ctx is cancelled
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			utils.Warn("kafka read failed", map[string]any{"error": err.Error()})
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.readDelay):
			}
			continue
		}

		ev, err := notification.DecodeEvent(m.Value, string(m.Key))
		if err != nil {
			// a poison message would otherwise block the partition
			utils.Warn("invalid bid change message", map[string]any{"offset": m.Offset, "partition": m.Partition, "error": err.Error()})
		} else if !c.deliver(ctx, ev) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			utils.Warn("kafka commit failed", map[string]any{"offset": m.Offset, "partition": m.Partition, "error": err.Error()})
		}
	}
}

// deliver publishes ev until the sink accepts it. It reports false when ctx
// ends first, leaving the message uncommitted for the next group member.
func (c *KafkaConsumer) deliver(ctx context.Context, ev notification.Event) bool {
	delay := c.retryBase
	for attempt := 1; ; attempt++ {
		err := c.sink.Publish(ctx, ev)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		utils.Warn("bid change not handled, retrying", map[string]any{
			"bid_id":  ev.BidID,
			"attempt": attempt,
			"error":   err.Error(),
		})

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		if delay *= 2; delay > c.retryMax {
			delay = c.retryMax
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
