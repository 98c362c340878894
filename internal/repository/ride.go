package repository

import (
	"context"
	"time"

	"ridesvc/internal/domain"
)

// RideEdit holds administrative changes to a ride. Nil fields are left
// unchanged in storage.
type RideEdit struct {
	StartLocation *string
	EndLocation   *string
	BookingTime   *time.Time
	ApprovedTime  *time.Time
	StartTime     *time.Time
	FinishTime    *time.Time
}

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride. Returns ErrDuplicate when the passenger
	// already has an unfinished ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// GetPage retrieves rides ordered by booking time, newest first.
	GetPage(ctx context.Context, limit, offset int) ([]*domain.Ride, error)

	// Update applies edit only if the stored status is still status.
	// Returns ErrConflict when no row matched.
	Update(ctx context.Context, id string, edit RideEdit, status domain.RideStatus) error

	// UpdateIfStatus writes the lifecycle fields of ride only if the stored
	// status is one of from. Returns ErrConflict when no row matched.
	UpdateIfStatus(ctx context.Context, ride *domain.Ride, from ...domain.RideStatus) error

	// RateDriver sets the driver rating only if it is still unset.
	// Returns ErrConflict when the rating was already set.
	RateDriver(ctx context.Context, id string, rating int) error

	// Delete removes a ride.
	Delete(ctx context.Context, id string) error

	// HasUnfinishedRide reports whether the passenger has a ride without a
	// finish time.
	HasUnfinishedRide(ctx context.Context, passengerID int64) (bool, error)

	// AverageDriverRating returns the mean of all ratings given to the driver.
	AverageDriverRating(ctx context.Context, driverID int64) (float64, error)

	// AveragePassengerRating returns the mean of all ratings given to the passenger.
	AveragePassengerRating(ctx context.Context, passengerID int64) (float64, error)

	// FindStalePending returns up to limit PENDING rides booked before the cutoff.
	FindStalePending(ctx context.Context, before time.Time, limit int) ([]*domain.Ride, error)
}
