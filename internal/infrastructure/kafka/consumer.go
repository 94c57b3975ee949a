package kafka_infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler processes one message. A nil return commits the offset. On
// error the same message is handed over again after a delay, up to the
// consumer's attempt limit. A message that exhausts its attempts is logged
// and committed so the partition keeps moving.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader         messageReader
	topic          string
	groupID        string
	handler        MessageHandler
	handlerTimeout time.Duration
	retryDelay     time.Duration
	maxAttempts    int
	logger         *zap.Logger
}

// NewConsumer reads topic as part of groupID. maxAttempts bounds how often a
// single message is handed to handler.
func NewConsumer(brokers []string, topic, groupID string, maxAttempts int, handler MessageHandler, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		Topic:             topic,
		GroupID:           groupID,
		MinBytes:          10e3,
		MaxBytes:          10e6,
		ReadBatchTimeout:  time.Second,
		HeartbeatInterval: 3 * time.Second,
		CommitInterval:    0,
		MaxAttempts:       3,
		Logger:            kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:       kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Error(fmt.Sprintf(msg, args...)) }),
	})
	return newConsumer(reader, topic, groupID, maxAttempts, handler, logger)
}

func newConsumer(reader messageReader, topic, groupID string, maxAttempts int, handler MessageHandler, logger *zap.Logger) *Consumer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Consumer{
		reader:         reader,
		topic:          topic,
		groupID:        groupID,
		handler:        handler,
		handlerTimeout: 25 * time.Second,
		retryDelay:     time.Second,
		maxAttempts:    maxAttempts,
		logger:         logger,
	}
}

// Consume runs until ctx is cancelled or the reader is closed.
func (c *Consumer) Consume(ctx context.Context) error {
	c.logger.Info("Kafka consumer starting message consumption",
		zap.String("topic", c.topic),
		zap.String("group_id", c.groupID),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping consumer.", zap.String("topic", c.topic))
			return nil
		default:
		}

		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, kafka.ErrGroupClosed) || errors.Is(err, io.EOF) {
				c.logger.Info("Consumer stopping due to context cancellation or reader closure.",
					zap.Error(err), zap.String("topic", c.topic))
				return nil
			}
			c.logger.Error("Error fetching message from Kafka", zap.Error(err), zap.String("topic", c.topic))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		if !c.handle(ctx, m) {
			return nil
		}

		commitCtx, cancelCommit := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.reader.CommitMessages(commitCtx, m); err != nil {
			c.logger.Error("Failed to commit offset for message",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
		}
		cancelCommit()
	}
}

// handle runs the handler until it succeeds or maxAttempts is reached. It
// returns false if ctx was cancelled first.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) bool {
	for attempt := 1; ; attempt++ {
		handleCtx, cancelHandler := context.WithTimeout(ctx, c.handlerTimeout)
		err := c.handler(handleCtx, m)
		cancelHandler()
		if err == nil {
			return true
		}

		if attempt >= c.maxAttempts {
			c.logger.Error("Giving up on Kafka message, committing offset",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.ByteString("key", m.Key),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return ctx.Err() == nil
		}

		c.logger.Error("Error handling Kafka message, will not commit offset",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close Kafka consumer reader", zap.Error(err), zap.String("topic", c.topic))
		return fmt.Errorf("failed to close Kafka consumer reader: %w", err)
	}
	c.logger.Info("Kafka consumer reader closed.", zap.String("topic", c.topic))
	return nil
}
