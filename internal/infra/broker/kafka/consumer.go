package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

const clientID = "rateguard"

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

var defaultRetryBackoff = []time.Duration{200 * time.Millisecond, time.Second, 5 * time.Second}

type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
	logger  *slog.Logger
	// Backoff lists the pauses between attempts at a failing message.
	Backoff []time.Duration
}

func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handler MessageHandler, logger *slog.Logger) (*Consumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.ClientID = clientID
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{group: g, handler: handler, logger: logger}, nil
}

func (c *Consumer) Run(ctx context.Context, topics []string) error {
	for {
		backoff := c.Backoff
		if backoff == nil {
			backoff = defaultRetryBackoff
		}
		if err := c.group.Consume(ctx, topics, consumerGroupHandler{handler: c.handler, logger: c.logger, backoff: backoff}); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler MessageHandler
	logger  *slog.Logger
	backoff []time.Duration
}

func (h consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks messages in order. A message that still fails after the
// retries ends the claim unmarked, which cancels the session; the next session
// resumes from the last committed offset, so the message is consumed again.
func (h consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handle(ctx, message); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if h.logger != nil {
					h.logger.ErrorContext(ctx, "kafka message handling failed",
						"topic", message.Topic, "partition", message.Partition, "offset", message.Offset, "error", err)
				}
				return fmt.Errorf("kafka: %s/%d at offset %d: %w", message.Topic, message.Partition, message.Offset, err)
			}
			sess.MarkMessage(message, "")
		}
	}
}

func (h consumerGroupHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	err := h.handler.Handle(ctx, msg)
	for attempt := 0; err != nil && attempt < len(h.backoff); attempt++ {
		if h.logger != nil {
			h.logger.WarnContext(ctx, "kafka message retry",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "attempt", attempt+1, "error", err)
		}
		timer := time.NewTimer(h.backoff[attempt])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		err = h.handler.Handle(ctx, msg)
	}
	return err
}
