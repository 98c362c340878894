package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusPending   RideStatus = "PENDING"
	RideStatusActive    RideStatus = "ACTIVE"
	RideStatusNoDrivers RideStatus = "NO_DRIVERS"
	RideStatusCanceled  RideStatus = "CANCELED"
	RideStatusFinished  RideStatus = "FINISHED"
)

// MinRating and MaxRating bound both driver and passenger ratings.
const (
	MinRating = 0
	MaxRating = 5
)

// Ride represents a booking from request through completion or cancellation.
//
// Status and the lifecycle fields are only changed through the guarded
// methods below. DriverID is zero unless the ride is ACTIVE or FINISHED.
type Ride struct {
	ID            string
	StartLocation string
	EndLocation   string
	PassengerID   int64
	BookingTime   time.Time
	Cost          float64
	PromoCodeID   int64 // 0 when no promo code was applied
	BankCardID    int64 // 0 when the passenger pays cash

	DriverID        int64
	ApprovedTime    time.Time
	StartTime       time.Time
	FinishTime      time.Time
	DriverRating    *int
	PassengerRating *int
	Status          RideStatus
}

// NewPendingRide creates a ride waiting for a driver search.
func NewPendingRide(id, start, end string, passengerID int64, cost float64, promoCodeID, bankCardID int64, now time.Time) *Ride {
	return &Ride{
		ID:            id,
		StartLocation: start,
		EndLocation:   end,
		PassengerID:   passengerID,
		BookingTime:   now,
		Cost:          cost,
		PromoCodeID:   promoCodeID,
		BankCardID:    bankCardID,
		Status:        RideStatusPending,
	}
}

// HasDriver reports whether a driver is assigned to the ride.
func (r *Ride) HasDriver() bool {
	return r.DriverID != 0
}

// IsFinished reports whether the ride reached a terminal state.
func (r *Ride) IsFinished() bool {
	return r.Status == RideStatusFinished || r.Status == RideStatusCanceled
}

// Assign moves a PENDING ride to ACTIVE with the matched driver.
func (r *Ride) Assign(driverID int64, now time.Time) error {
	if r.Status != RideStatusPending {
		return invalidStatus(r.Status, "assign")
	}
	if driverID <= 0 {
		return ErrInvalidDriver
	}
	r.DriverID = driverID
	r.ApprovedTime = now
	r.StartTime = now
	r.Status = RideStatusActive
	return nil
}

// MarkNoDrivers records that the driver search found nobody.
func (r *Ride) MarkNoDrivers() error {
	if r.Status != RideStatusPending {
		return invalidStatus(r.Status, "mark no drivers")
	}
	r.Status = RideStatusNoDrivers
	return nil
}

// Finish closes an ACTIVE ride and records the driver's rating of the passenger.
func (r *Ride) Finish(now time.Time, passengerRating int) error {
	if r.Status != RideStatusActive {
		return invalidStatus(r.Status, "finish")
	}
	if !ValidRating(passengerRating) {
		return ErrInvalidRating
	}
	r.FinishTime = now
	r.PassengerRating = &passengerRating
	r.Status = RideStatusFinished
	return nil
}

// Cancel cancels a ride that has no driver yet.
// A ride with an assigned driver must be finished instead.
func (r *Ride) Cancel(now time.Time) error {
	if r.Status != RideStatusPending && r.Status != RideStatusNoDrivers {
		return invalidStatus(r.Status, "cancel")
	}
	r.FinishTime = now
	r.Status = RideStatusCanceled
	return nil
}

// RateDriver sets the passenger's rating of the driver, once.
func (r *Ride) RateDriver(rating int) error {
	if !ValidRating(rating) {
		return ErrInvalidRating
	}
	if r.DriverRating != nil {
		return ErrAlreadyRated
	}
	if r.Status != RideStatusActive && r.Status != RideStatusFinished {
		return invalidStatus(r.Status, "rate driver")
	}
	r.DriverRating = &rating
	return nil
}

// CarriesDriverTimes reports whether a ride in this status has approved
// and start times, i.e. a driver was assigned.
func (s RideStatus) CarriesDriverTimes() bool {
	return s == RideStatusActive || s == RideStatusFinished
}

// CarriesFinishTime reports whether a ride in this status has a finish time.
func (s RideStatus) CarriesFinishTime() bool {
	return s == RideStatusFinished || s == RideStatusCanceled
}

// CancelableStatuses lists the source states of a passenger cancellation.
func CancelableStatuses() []RideStatus {
	return []RideStatus{RideStatusPending, RideStatusNoDrivers}
}

// RateableStatuses lists the states in which the driver can be rated.
func RateableStatuses() []RideStatus {
	return []RideStatus{RideStatusActive, RideStatusFinished}
}

// ValidRating reports whether v is within the rating scale.
func ValidRating(v int) bool {
	return v >= MinRating && v <= MaxRating
}
