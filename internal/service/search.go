package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"ridesvc/internal/domain"
	"ridesvc/internal/repository"
)

// HandleDriverFound assigns the matched driver to a PENDING ride. When the
// ride is gone, no longer PENDING, or changes concurrently, the driver is
// released instead. Release failures are logged and not returned.
func (s *RideService) HandleDriverFound(ctx context.Context, event domain.DriverFound) error {
	log := s.logger.With(zap.String("ride_id", event.RideID), zap.Int64("driver_id", event.DriverID))

	ride, err := s.rideRepo.GetByID(ctx, event.RideID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("driver found for unknown ride")
			s.releaseQuietly(ctx, event.DriverID, log)
			return nil
		}
		return err
	}

	if err := ride.Assign(event.DriverID, s.now()); err != nil {
		log.Info("driver found for ride that is not pending", zap.String("status", string(ride.Status)), zap.Error(err))
		s.releaseQuietly(ctx, event.DriverID, log)
		return nil
	}

	if err := s.rideRepo.UpdateIfStatus(ctx, ride, domain.RideStatusPending); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			log.Info("ride changed while assigning driver")
			s.releaseQuietly(ctx, event.DriverID, log)
			return nil
		}
		return err
	}

	log.Info("driver assigned")
	return nil
}

// HandleDriverNotFound marks a PENDING ride as NO_DRIVERS. Outcomes for
// rides in any other state are ignored.
func (s *RideService) HandleDriverNotFound(ctx context.Context, event domain.DriverNotFound) error {
	log := s.logger.With(zap.String("ride_id", event.RideID))

	ride, err := s.rideRepo.GetByID(ctx, event.RideID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("driver not found outcome for unknown ride")
			return nil
		}
		return err
	}

	if err := ride.MarkNoDrivers(); err != nil {
		log.Debug("ignoring driver not found outcome", zap.String("status", string(ride.Status)))
		return nil
	}

	if err := s.rideRepo.UpdateIfStatus(ctx, ride, domain.RideStatusPending); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil
		}
		return err
	}

	log.Info("no drivers available")
	return nil
}

// AbandonDriverFound runs when a found event is given up after repeated
// failures. The driver is released unless the ride is confirmed to be
// assigned to it.
func (s *RideService) AbandonDriverFound(ctx context.Context, event domain.DriverFound) {
	log := s.logger.With(zap.String("ride_id", event.RideID), zap.Int64("driver_id", event.DriverID))

	ride, err := s.rideRepo.GetByID(ctx, event.RideID)
	if err == nil && ride.DriverID == event.DriverID && ride.Status.CarriesDriverTimes() {
		log.Info("abandoned driver found event was already applied")
		return
	}
	if err != nil {
		log.Warn("cannot confirm assignment of abandoned driver found event", zap.Error(err))
	}
	s.releaseQuietly(ctx, event.DriverID, log)
}

func (s *RideService) releaseQuietly(ctx context.Context, driverID int64, log *zap.Logger) {
	if err := s.releaseDriver(ctx, driverID); err != nil {
		log.Error("driver release failed", zap.Error(err))
	}
}
