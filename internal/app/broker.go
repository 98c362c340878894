package app

import (
	"fmt"

	"go.uber.org/zap"

	"ridesvc/internal/broker"
	"ridesvc/internal/config"
)

// Broker bundles the publisher and subscriber of the selected transport.
type Broker struct {
	Publisher  broker.Publisher
	Subscriber broker.Subscriber
	Topics     broker.Topics
}

// Close closes both sides of the broker.
func (b *Broker) Close() error {
	pubErr := b.Publisher.Close()
	if any(b.Publisher) == any(b.Subscriber) {
		return pubErr
	}
	subErr := b.Subscriber.Close()
	if pubErr != nil {
		return pubErr
	}
	return subErr
}

// Topics returns the configured topic names.
func Topics(cfg config.BrokerConfig) broker.Topics {
	return broker.Topics{
		SearchRequest:  cfg.SearchRequestTopic,
		DriverFound:    cfg.DriverFoundTopic,
		DriverNotFound: cfg.DriverNotFoundTopic,
	}
}

// NewBroker connects to Kafka or RabbitMQ depending on cfg.Kind.
func NewBroker(cfg config.BrokerConfig, logger *zap.Logger) (*Broker, error) {
	topics := Topics(cfg)

	switch cfg.Kind {
	case config.BrokerKafka:
		kcfg := broker.KafkaConfig{
			Brokers:        cfg.KafkaBrokers,
			GroupID:        cfg.KafkaGroupID,
			HandlerRetries: cfg.HandlerRetries,
			RetryInterval:  cfg.RetryInterval,
		}
		return &Broker{
			Publisher:  broker.NewKafkaPublisher(kcfg),
			Subscriber: broker.NewKafkaSubscriber(kcfg, logger),
			Topics:     topics,
		}, nil

	case config.BrokerRabbitMQ:
		queues := []string{topics.SearchRequest, topics.DriverFound, topics.DriverNotFound}
		mq, err := broker.NewRabbitMQ(cfg.AMQPURL, cfg.Prefetch, queues, logger)
		if err != nil {
			return nil, err
		}
		return &Broker{Publisher: mq, Subscriber: mq, Topics: topics}, nil

	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Kind)
	}
}
