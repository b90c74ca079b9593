package kafka

import (
	"context"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

type EventHandler func(ctx context.Context, event Event) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads envelopes as part of a consumer group. Offsets are
// committed after the handler returns, whatever the outcome, so a poison
// message is logged and skipped instead of blocking the partition.
type Consumer struct {
	reader messageReader
	log    *slog.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, log: log}
}

// Consume blocks until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.log.Error("failed to read message", "error", err)
			continue
		}

		event, err := DecodeEvent(msg.Value)
		if err != nil {
			c.log.Warn("skipping malformed message", "offset", msg.Offset, "partition", msg.Partition, "error", err)
		} else if err := handler(ctx, event); err != nil {
			c.log.Error("failed to handle event", "event_id", event.ID, "event_type", event.Type, "error", err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("failed to commit offset", "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
