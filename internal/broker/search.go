package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ridesvc/internal/domain"
)

// SearchPublisher sends driver-search requests.
type SearchPublisher struct {
	pub   Publisher
	topic string
}

// NewSearchPublisher creates a SearchPublisher writing to topic.
func NewSearchPublisher(pub Publisher, topic string) *SearchPublisher {
	return &SearchPublisher{pub: pub, topic: topic}
}

// RequestSearch asks the Driver service to find a driver for the ride.
func (p *SearchPublisher) RequestSearch(ctx context.Context, rideID string) error {
	payload, err := json.Marshal(domain.SearchRequest{RideID: rideID})
	if err != nil {
		return err
	}
	return p.pub.Publish(ctx, p.topic, rideID, payload)
}

// OutcomeHandler reacts to the result of a driver search.
type OutcomeHandler interface {
	HandleDriverFound(ctx context.Context, event domain.DriverFound) error
	HandleDriverNotFound(ctx context.Context, event domain.DriverNotFound) error
	// AbandonDriverFound compensates a found event that could not be applied.
	AbandonDriverFound(ctx context.Context, event domain.DriverFound)
}

// OutcomeConsumer decodes driver-search outcomes and dispatches them.
type OutcomeConsumer struct {
	sub     Subscriber
	topics  Topics
	handler OutcomeHandler
	nrApp   *newrelic.Application
	logger  *zap.Logger
}

// NewOutcomeConsumer creates an OutcomeConsumer. nrApp may be nil.
func NewOutcomeConsumer(sub Subscriber, topics Topics, handler OutcomeHandler, nrApp *newrelic.Application, logger *zap.Logger) *OutcomeConsumer {
	return &OutcomeConsumer{
		sub:     sub,
		topics:  topics,
		handler: handler,
		nrApp:   nrApp,
		logger:  logger,
	}
}

// Run consumes both outcome topics until ctx is done or a subscription fails.
func (c *OutcomeConsumer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.sub.Subscribe(ctx, c.topics.DriverFound, c.traced(c.topics.DriverFound, c.handleFound), c.dropFound)
	})
	g.Go(func() error {
		// A dropped not-found outcome leaves the ride PENDING for the sweeper.
		return c.sub.Subscribe(ctx, c.topics.DriverNotFound, c.traced(c.topics.DriverNotFound, c.handleNotFound), nil)
	})
	return g.Wait()
}

func (c *OutcomeConsumer) handleFound(ctx context.Context, payload []byte) error {
	var event domain.DriverFound
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if event.RideID == "" || event.DriverID <= 0 {
		return fmt.Errorf("%w: driver found event without ride or driver id", ErrMalformedMessage)
	}
	return c.handler.HandleDriverFound(ctx, event)
}

// dropFound runs when the transport gives up on a found event, so the
// matched driver is not left unavailable.
func (c *OutcomeConsumer) dropFound(ctx context.Context, payload []byte, cause error) {
	var event domain.DriverFound
	if err := json.Unmarshal(payload, &event); err != nil {
		return
	}
	c.logger.Error("giving up on driver found event",
		zap.String("ride_id", event.RideID),
		zap.Int64("driver_id", event.DriverID),
		zap.Error(cause),
	)
	c.handler.AbandonDriverFound(ctx, event)
}

func (c *OutcomeConsumer) handleNotFound(ctx context.Context, payload []byte) error {
	var event domain.DriverNotFound
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if event.RideID == "" {
		return fmt.Errorf("%w: driver not found event without ride id", ErrMalformedMessage)
	}
	return c.handler.HandleDriverNotFound(ctx, event)
}

// traced wraps h in a New Relic background transaction.
func (c *OutcomeConsumer) traced(topic string, h Handler) Handler {
	return func(ctx context.Context, payload []byte) error {
		txn := c.nrApp.StartTransaction("consume/" + topic)
		defer txn.End()

		err := h(newrelic.NewContext(ctx, txn), payload)
		if err != nil {
			txn.NoticeError(err)
		}
		return err
	}
}
