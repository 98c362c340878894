// Package broker carries the driver-search protocol over Kafka or RabbitMQ.
package broker

import (
	"context"
	"errors"
)

// ErrMalformedMessage marks a message that can never be processed.
// Consumers drop such messages instead of redelivering them.
var ErrMalformedMessage = errors.New("malformed message")

// Handler processes one message payload.
type Handler func(ctx context.Context, payload []byte) error

// DropHandler is called with a message the transport gives up on after
// the handler kept failing. It is not called for malformed messages or
// when the subscription is shutting down.
type DropHandler func(ctx context.Context, payload []byte, cause error)

// Publisher sends a payload to a topic (a Kafka topic or a RabbitMQ queue).
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

// Subscriber delivers the messages of a topic to a handler until ctx is done.
// Subscribe blocks. onDrop may be nil.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, h Handler, onDrop DropHandler) error
	Close() error
}

// Topics names the three channels of the driver-search protocol.
type Topics struct {
	SearchRequest  string
	DriverFound    string
	DriverNotFound string
}

// DefaultTopics returns the topic names shared with the Driver service.
func DefaultTopics() Topics {
	return Topics{
		SearchRequest:  "ride-search-request",
		DriverFound:    "driver-found",
		DriverNotFound: "driver-not-found",
	}
}
