package client

import (
	"context"
	"fmt"
	"net/http"

	"ridesvc/internal/domain"
)

// Settlement is pushed to the Passenger service when a ride finishes.
type Settlement struct {
	Rating     float64 `json:"passengerRating"`
	Cost       float64 `json:"rideCost"`
	BankCardID int64   `json:"passengerBankCardId,omitempty"`
}

// PassengerClient calls the Passenger service.
type PassengerClient struct {
	rest *restClient
}

// NewPassengerClient creates a PassengerClient for baseURL.
func NewPassengerClient(baseURL string, exec *Executor, transport http.RoundTripper) *PassengerClient {
	return &PassengerClient{rest: newRestClient(baseURL, exec, transport)}
}

// GetPassenger returns the passenger profile with bank cards.
func (c *PassengerClient) GetPassenger(ctx context.Context, id int64) (*domain.Passenger, error) {
	var passenger domain.Passenger
	if err := c.rest.do(ctx, true, http.MethodGet, fmt.Sprintf("/%d", id), nil, &passenger); err != nil {
		return nil, err
	}
	return &passenger, nil
}

// SettleAfterRide pushes the passenger's new average rating and the ride
// cost. It deducts money, so it is never retried.
func (c *PassengerClient) SettleAfterRide(ctx context.Context, passengerID int64, s Settlement) error {
	return c.rest.do(ctx, false, http.MethodPut, fmt.Sprintf("/after-ride/%d", passengerID), s, nil)
}
