package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRideStatus is returned when a transition is attempted from a state that does not allow it.
	ErrInvalidRideStatus = errors.New("invalid ride status")

	// ErrAlreadyRated is returned when a rating has already been recorded for the ride.
	ErrAlreadyRated = errors.New("ride already rated")

	// ErrInvalidRating is returned when a rating is outside the 0..5 scale.
	ErrInvalidRating = errors.New("rating must be between 0 and 5")

	// ErrInvalidDriver is returned when a ride is assigned to a non-positive driver id.
	ErrInvalidDriver = errors.New("invalid driver id")
)

func invalidStatus(status RideStatus, action string) error {
	return fmt.Errorf("%w: cannot %s ride in status %s", ErrInvalidRideStatus, action, status)
}
