package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ridesvc/internal/domain"
	"ridesvc/internal/service"
)

// RideService is the ride orchestration used by the HTTP surface.
type RideService interface {
	Order(ctx context.Context, req service.OrderRequest) (*domain.Ride, error)
	GetByID(ctx context.Context, rideID string) (*domain.Ride, error)
	GetAll(ctx context.Context, page, size int) ([]service.RideDetails, error)
	Update(ctx context.Context, rideID string, req service.UpdateRideRequest) (*domain.Ride, error)
	Delete(ctx context.Context, rideID string) error
	FinishByDriver(ctx context.Context, rideID string, passengerRating int) (*domain.Ride, error)
	CancelByPassenger(ctx context.Context, rideID string) (*domain.Ride, error)
	UpdateDriverRating(ctx context.Context, rideID string, rating int) (*domain.Ride, error)
}

// Ensure RideService implementation satisfies the handler contract.
var _ RideService = (*service.RideService)(nil)

const defaultPageSize = 10

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService RideService) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// OrderRideRequest is the HTTP request body for ordering a ride.
type OrderRideRequest struct {
	StartLocation string `json:"start_location"`
	EndLocation   string `json:"end_location"`
	PassengerID   int64  `json:"passenger_id"`
	PromoCodeName string `json:"promo_code_name,omitempty"`
	BankCardID    int64  `json:"bank_card_id,omitempty"`
}

// FinishRideRequest is the HTTP request body for finishing a ride.
type FinishRideRequest struct {
	PassengerRating *int `json:"passenger_rating"`
}

// UpdateRideRequest is the HTTP request body for the administrative update.
type UpdateRideRequest struct {
	StartLocation string     `json:"start_location,omitempty"`
	EndLocation   string     `json:"end_location,omitempty"`
	BookingTime   *time.Time `json:"booking_time,omitempty"`
	ApprovedTime  *time.Time `json:"approved_time,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	FinishTime    *time.Time `json:"finish_time,omitempty"`
}

// CarResponse is the car of the ride's driver.
type CarResponse struct {
	Model  string `json:"model"`
	Colour string `json:"colour"`
	Number string `json:"number"`
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	ID              string       `json:"id"`
	StartLocation   string       `json:"start_location"`
	EndLocation     string       `json:"end_location"`
	PassengerID     int64        `json:"passenger_id"`
	DriverID        int64        `json:"driver_id,omitempty"`
	DriverRating    *int         `json:"driver_rating,omitempty"`
	PassengerRating *int         `json:"passenger_rating,omitempty"`
	BookingTime     time.Time    `json:"booking_time"`
	ApprovedTime    *time.Time   `json:"approved_time,omitempty"`
	StartTime       *time.Time   `json:"start_time,omitempty"`
	FinishTime      *time.Time   `json:"finish_time,omitempty"`
	BankCardID      int64        `json:"bank_card_id,omitempty"`
	PromoCodeID     int64        `json:"promo_code_id,omitempty"`
	Cost            float64      `json:"cost"`
	Status          string       `json:"status"`
	Car             *CarResponse `json:"car,omitempty"`
}

// RidePageResponse is one page of rides.
type RidePageResponse struct {
	Rides []RideResponse `json:"rides"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toRideResponse(ride *domain.Ride, car *domain.Car) RideResponse {
	resp := RideResponse{
		ID:              ride.ID,
		StartLocation:   ride.StartLocation,
		EndLocation:     ride.EndLocation,
		PassengerID:     ride.PassengerID,
		DriverID:        ride.DriverID,
		DriverRating:    ride.DriverRating,
		PassengerRating: ride.PassengerRating,
		BookingTime:     ride.BookingTime,
		ApprovedTime:    optionalTime(ride.ApprovedTime),
		StartTime:       optionalTime(ride.StartTime),
		FinishTime:      optionalTime(ride.FinishTime),
		BankCardID:      ride.BankCardID,
		PromoCodeID:     ride.PromoCodeID,
		Cost:            ride.Cost,
		Status:          string(ride.Status),
	}
	if car != nil {
		resp.Car = &CarResponse{Model: car.Model, Colour: car.Colour, Number: car.Number}
	}
	return resp
}

// OrderRide handles POST /v1/rides
func (h *RideHandler) OrderRide(c *gin.Context) {
	var req OrderRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rideService.Order(c.Request.Context(), service.OrderRequest{
		StartLocation: req.StartLocation,
		EndLocation:   req.EndLocation,
		PassengerID:   req.PassengerID,
		PromoCodeName: req.PromoCodeName,
		BankCardID:    req.BankCardID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRideResponse(ride, nil))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rideService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride, nil))
}

// ListRides handles GET /v1/rides?page=&size=
func (h *RideHandler) ListRides(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultPageSize)))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid size"})
		return
	}

	rides, err := h.rideService.GetAll(c.Request.Context(), page, size)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := RidePageResponse{Rides: make([]RideResponse, 0, len(rides)), Page: page, Size: size}
	for _, details := range rides {
		resp.Rides = append(resp.Rides, toRideResponse(details.Ride, details.Car))
	}
	respondJSON(c, http.StatusOK, resp)
}

// FinishRide handles PUT /v1/rides/:id/finish
func (h *RideHandler) FinishRide(c *gin.Context) {
	var req FinishRideRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PassengerRating == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "passenger_rating is required"})
		return
	}

	ride, err := h.rideService.FinishByDriver(c.Request.Context(), c.Param("id"), *req.PassengerRating)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride, nil))
}

// CancelRide handles PUT /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	ride, err := h.rideService.CancelByPassenger(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride, nil))
}

// RateDriver handles PUT /v1/rides/:id/:driverRating
func (h *RideHandler) RateDriver(c *gin.Context) {
	rating, err := strconv.Atoi(c.Param("driverRating"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "driver rating must be an integer"})
		return
	}

	ride, err := h.rideService.UpdateDriverRating(c.Request.Context(), c.Param("id"), rating)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride, nil))
}

// UpdateRide handles PUT /v1/rides/:id
func (h *RideHandler) UpdateRide(c *gin.Context) {
	var req UpdateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	update := service.UpdateRideRequest{
		StartLocation: req.StartLocation,
		EndLocation:   req.EndLocation,
	}
	if req.BookingTime != nil {
		update.BookingTime = *req.BookingTime
	}
	if req.ApprovedTime != nil {
		update.ApprovedTime = *req.ApprovedTime
	}
	if req.StartTime != nil {
		update.StartTime = *req.StartTime
	}
	if req.FinishTime != nil {
		update.FinishTime = *req.FinishTime
	}

	ride, err := h.rideService.Update(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride, nil))
}

// DeleteRide handles DELETE /v1/rides/:id
func (h *RideHandler) DeleteRide(c *gin.Context) {
	if err := h.rideService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
