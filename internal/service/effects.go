package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ridesvc/internal/client"
	"ridesvc/internal/domain"
)

// effect is a cross-service side effect run after a ride transition has
// been committed. Effects never roll the transition back.
type effect struct {
	name string
	run  func(ctx context.Context) error
}

// runEffects runs every effect, logs each failure and returns them joined.
func (s *RideService) runEffects(ctx context.Context, ride *domain.Ride, effects []effect) error {
	var errs []error
	for _, e := range effects {
		if err := e.run(ctx); err != nil {
			s.logger.Error("post-transition effect failed",
				zap.String("effect", e.name),
				zap.String("ride_id", ride.ID),
				zap.String("status", string(ride.Status)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *RideService) releaseDriverEffect(driverID int64) effect {
	return effect{
		name: "release driver",
		run: func(ctx context.Context) error {
			return s.releaseDriver(ctx, driverID)
		},
	}
}

func (s *RideService) settlePassengerEffect(ride *domain.Ride) effect {
	return effect{
		name: "settle passenger",
		run: func(ctx context.Context) error {
			avg, err := s.rideRepo.AveragePassengerRating(ctx, ride.PassengerID)
			if err != nil {
				return fmt.Errorf("average passenger rating: %w", err)
			}
			return s.passengers.SettleAfterRide(ctx, ride.PassengerID, client.Settlement{
				Rating:     round2(avg),
				Cost:       ride.Cost,
				BankCardID: ride.BankCardID,
			})
		},
	}
}

func (s *RideService) pushDriverRatingEffect(driverID int64) effect {
	return effect{
		name: "push driver rating",
		run: func(ctx context.Context) error {
			avg, err := s.rideRepo.AverageDriverRating(ctx, driverID)
			if err != nil {
				return fmt.Errorf("average driver rating: %w", err)
			}
			return s.drivers.SetRating(ctx, driverID, round2(avg))
		},
	}
}

// releaseDriver marks the driver available again and drops its cached profile.
func (s *RideService) releaseDriver(ctx context.Context, driverID int64) error {
	if err := s.drivers.SetAvailable(ctx, driverID); err != nil {
		return err
	}
	if s.driverCache != nil {
		if err := s.driverCache.InvalidateDriver(ctx, driverID); err != nil {
			s.logger.Warn("driver cache invalidation failed", zap.Int64("driver_id", driverID), zap.Error(err))
		}
	}
	return nil
}
