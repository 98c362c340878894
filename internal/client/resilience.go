package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Policy configures the resilience wrapper around calls to one downstream service.
type Policy struct {
	// Timeout bounds every single attempt.
	Timeout time.Duration
	// MaxAttempts is the total number of attempts for retryable calls.
	MaxAttempts int
	// RetryInterval is the pause between attempts.
	RetryInterval time.Duration
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// Window is the period after which failure counts reset while closed.
	Window time.Duration
	// CoolDown is how long the breaker stays open before admitting trial calls.
	CoolDown time.Duration
	// HalfOpenMaxCalls is the number of trial calls admitted while half-open.
	HalfOpenMaxCalls uint32
}

// Executor runs calls to one downstream service under a timeout, retry and
// circuit breaker policy. One Executor is shared by every caller of that
// service so the breaker state is process-wide.
type Executor struct {
	name    string
	policy  Policy
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewExecutor creates an Executor for the named downstream service.
func NewExecutor(name string, policy Policy, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	e := &Executor{name: name, policy: policy, logger: logger}
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: policy.HalfOpenMaxCalls,
		Interval:    policy.Window,
		Timeout:     policy.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= policy.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// A 4xx answer means the service is healthy.
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("service", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return e
}

// Name returns the downstream service name.
func (e *Executor) Name() string {
	return e.name
}

// State returns the current breaker state.
func (e *Executor) State() gobreaker.State {
	return e.breaker.State()
}

// Do runs call through the breaker. Retryable calls are attempted up to
// MaxAttempts times; ErrNotFound and ErrCircuitOpen are never retried.
func (e *Executor) Do(ctx context.Context, retryable bool, call func(ctx context.Context) error) error {
	attempts := 1
	if retryable {
		attempts = e.policy.MaxAttempts
	}

	attempt := 0
	op := func() error {
		attempt++
		_, err := e.breaker.Execute(func() (interface{}, error) {
			attemptCtx := ctx
			if e.policy.Timeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, e.policy.Timeout)
				defer cancel()
			}
			return nil, call(attemptCtx)
		})

		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrCircuitOpen, e.name))
		case errors.Is(err, ErrNotFound):
			return backoff.Permanent(err)
		}

		if attempt < attempts {
			e.logger.Debug("downstream call failed, retrying",
				zap.String("service", e.name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.policy.RetryInterval), uint64(attempts-1)),
		ctx,
	)

	err := backoff.Retry(op, b)
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrServiceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, e.name, err)
}
