package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// RabbitMQ publishes to and consumes from durable queues on the default exchange.
type RabbitMQ struct {
	conn     *amqp.Connection
	pubCh    *amqp.Channel
	mu       sync.Mutex
	prefetch int
	logger   *zap.Logger
}

// NewRabbitMQ dials url and declares the given queues.
func NewRabbitMQ(url string, prefetch int, queues []string, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	if prefetch <= 0 {
		prefetch = 10
	}

	return &RabbitMQ{conn: conn, pubCh: ch, prefetch: prefetch, logger: logger}, nil
}

// Publish sends payload to the queue named topic.
func (r *RabbitMQ) Publish(ctx context.Context, topic, key string, payload []byte) error {
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.pubCh.PublishWithContext(
		publishCtx,
		"",    // default exchange
		topic, // routing key = queue name
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    key,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe consumes the queue named topic until ctx is done. A failed
// message is requeued once and then passed to onDrop; a malformed one is
// rejected.
func (r *RabbitMQ) Subscribe(ctx context.Context, topic string, h Handler, onDrop DropHandler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		topic,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", topic, err)
	}

	r.logger.Info("rabbitmq consumer started", zap.String("queue", topic))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("rabbitmq delivery channel for %s closed", topic)
			}
			r.deliver(ctx, topic, h, onDrop, d)
		}
	}
}

func (r *RabbitMQ) deliver(ctx context.Context, topic string, h Handler, onDrop DropHandler, d amqp.Delivery) {
	err := h(ctx, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			r.logger.Error("ack failed", zap.String("queue", topic), zap.Error(ackErr))
		}
		return
	}

	requeue := !d.Redelivered && !errors.Is(err, ErrMalformedMessage)
	r.logger.Error("message handling failed",
		zap.String("queue", topic),
		zap.Bool("requeue", requeue),
		zap.Error(err),
	)
	if !requeue && onDrop != nil && ctx.Err() == nil && !errors.Is(err, ErrMalformedMessage) {
		onDrop(ctx, d.Body, err)
	}
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		r.logger.Error("nack failed", zap.String("queue", topic), zap.Error(nackErr))
	}
}

// Close closes the publishing channel and the connection.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.pubCh.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}
