package client

import (
	"context"
	"fmt"
	"net/http"

	"ridesvc/internal/domain"
)

type driverIDList struct {
	IDs []int64 `json:"listId"`
}

type driverList struct {
	Drivers []*domain.Driver `json:"driverDtoList"`
}

type driverRating struct {
	Rating float64 `json:"rating"`
}

// DriverClient calls the Driver service.
type DriverClient struct {
	rest *restClient
}

// NewDriverClient creates a DriverClient for baseURL.
func NewDriverClient(baseURL string, exec *Executor, transport http.RoundTripper) *DriverClient {
	return &DriverClient{rest: newRestClient(baseURL, exec, transport)}
}

// GetDriver returns one driver with car.
func (c *DriverClient) GetDriver(ctx context.Context, id int64) (*domain.Driver, error) {
	var driver domain.Driver
	if err := c.rest.do(ctx, true, http.MethodGet, fmt.Sprintf("/%d", id), nil, &driver); err != nil {
		return nil, err
	}
	return &driver, nil
}

// GetDrivers returns the drivers with the given ids in one call.
func (c *DriverClient) GetDrivers(ctx context.Context, ids []int64) ([]*domain.Driver, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var list driverList
	if err := c.rest.do(ctx, true, http.MethodPost, "/list-id", driverIDList{IDs: ids}, &list); err != nil {
		return nil, err
	}
	return list.Drivers, nil
}

// SetAvailable marks the driver available again. Idempotent, so retried.
func (c *DriverClient) SetAvailable(ctx context.Context, id int64) error {
	return c.rest.do(ctx, true, http.MethodPut, fmt.Sprintf("/%d/available-true", id), nil, nil)
}

// SetRating pushes the driver's new average rating.
func (c *DriverClient) SetRating(ctx context.Context, id int64, rating float64) error {
	return c.rest.do(ctx, false, http.MethodPut, fmt.Sprintf("/%d/new-rating", id), driverRating{Rating: rating}, nil)
}
