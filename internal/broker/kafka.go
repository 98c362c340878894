package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig configures the Kafka transport.
type KafkaConfig struct {
	Brokers []string
	GroupID string
	// HandlerRetries is how many times a failed message is handled again
	// before it is committed and skipped.
	HandlerRetries int
	RetryInterval  time.Duration
}

// KafkaPublisher publishes messages with one writer for all topics.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a KafkaPublisher.
func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Publish writes payload to topic, keyed by key.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaSubscriber consumes topics within one consumer group.
type KafkaSubscriber struct {
	cfg    KafkaConfig
	logger *zap.Logger
}

// NewKafkaSubscriber creates a KafkaSubscriber.
func NewKafkaSubscriber(cfg KafkaConfig, logger *zap.Logger) *KafkaSubscriber {
	return &KafkaSubscriber{cfg: cfg, logger: logger}
}

// Subscribe reads topic until ctx is done. A message is committed once the
// handler succeeds, returns ErrMalformedMessage, or exhausts its retries.
// Exhausted messages are passed to onDrop before the commit.
func (s *KafkaSubscriber) Subscribe(ctx context.Context, topic string, h Handler, onDrop DropHandler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.cfg.Brokers,
		Topic:    topic,
		GroupID:  s.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	s.logger.Info("kafka consumer started", zap.String("topic", topic), zap.String("group", s.cfg.GroupID))

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch from %s: %w", topic, err)
		}

		if err := s.handle(ctx, h, onDrop, msg.Value); err != nil {
			s.logger.Error("dropping message after failed handling",
				zap.String("topic", topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka commit on %s: %w", topic, err)
		}
	}
}

func (s *KafkaSubscriber) handle(ctx context.Context, h Handler, onDrop DropHandler, payload []byte) error {
	op := func() error {
		err := h(ctx, payload)
		if errors.Is(err, ErrMalformedMessage) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.RetryInterval), uint64(s.cfg.HandlerRetries)),
		ctx,
	)
	err := backoff.Retry(op, b)
	if err != nil && onDrop != nil && ctx.Err() == nil && !errors.Is(err, ErrMalformedMessage) {
		onDrop(ctx, payload, err)
	}
	return err
}

// Close is a no-op; readers are closed when Subscribe returns.
func (s *KafkaSubscriber) Close() error {
	return nil
}
