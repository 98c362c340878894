package service

import "errors"

var (
	// ErrInvalidRequest is returned when an order or update request is incomplete.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = errors.New("invalid ride id")

	// ErrInvalidPage is returned when page or size are out of range.
	ErrInvalidPage = errors.New("invalid page")

	// ErrDateOrder is returned when ride timestamps are not in lifecycle order.
	ErrDateOrder = errors.New("ride timestamps out of order")

	// ErrUnfinishedBookingExists is returned when the passenger already has an unfinished ride.
	ErrUnfinishedBookingExists = errors.New("passenger already has an unfinished ride")

	// ErrPromoCodeNotFound is returned when the promo code does not exist or is not valid now.
	ErrPromoCodeNotFound = errors.New("promo code not found")

	// ErrBankCardNotFound is returned when the bank card does not belong to the passenger.
	ErrBankCardNotFound = errors.New("bank card not found")

	// ErrInsufficientFunds is returned when the bank card balance is below the ride cost.
	ErrInsufficientFunds = errors.New("insufficient funds")
)
