package service

import (
	"context"
	"errors"
	"fmt"

	"ridesvc/internal/domain"
	"ridesvc/internal/repository"
)

// FinishByDriver closes an ACTIVE ride, then releases the driver and
// settles the passenger. The ride stays FINISHED if an effect fails; the
// failures are returned together with the finished ride.
func (s *RideService) FinishByDriver(ctx context.Context, rideID string, passengerRating int) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	if err := ride.Finish(s.now(), passengerRating); err != nil {
		return nil, err
	}

	if err := s.rideRepo.UpdateIfStatus(ctx, ride, domain.RideStatusActive); err != nil {
		return nil, lostRace(err, rideID)
	}

	err = s.runEffects(ctx, ride, []effect{
		s.releaseDriverEffect(ride.DriverID),
		s.settlePassengerEffect(ride),
	})
	return ride, err
}

// CancelByPassenger cancels a ride that has no driver yet.
func (s *RideService) CancelByPassenger(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	if err := ride.Cancel(s.now()); err != nil {
		return nil, err
	}

	if err := s.rideRepo.UpdateIfStatus(ctx, ride, domain.CancelableStatuses()...); err != nil {
		return nil, lostRace(err, rideID)
	}

	return ride, nil
}

// UpdateDriverRating records the passenger's rating of the driver and
// pushes the driver's new average to the Driver service.
func (s *RideService) UpdateDriverRating(ctx context.Context, rideID string, rating int) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if !domain.ValidRating(rating) {
		return nil, domain.ErrInvalidRating
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	if err := ride.RateDriver(rating); err != nil {
		return nil, err
	}

	if err := s.rideRepo.RateDriver(ctx, rideID, rating); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.ErrAlreadyRated
		}
		return nil, err
	}

	err = s.runEffects(ctx, ride, []effect{s.pushDriverRatingEffect(ride.DriverID)})
	return ride, err
}

// lostRace reports a compare-and-set miss as an invalid transition.
func lostRace(err error, rideID string) error {
	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("%w: ride %s changed concurrently", domain.ErrInvalidRideStatus, rideID)
	}
	return err
}
