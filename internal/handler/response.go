package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridesvc/internal/client"
	"ridesvc/internal/domain"
	"ridesvc/internal/repository"
	"ridesvc/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps domain, service, repository and client errors
// to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, client.ErrNotFound),
		errors.Is(err, service.ErrPromoCodeNotFound),
		errors.Is(err, service.ErrBankCardNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidRideID),
		errors.Is(err, service.ErrInvalidPage),
		errors.Is(err, service.ErrDateOrder),
		errors.Is(err, domain.ErrInvalidRating),
		errors.Is(err, domain.ErrInvalidDriver):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, domain.ErrInvalidRideStatus),
		errors.Is(err, domain.ErrAlreadyRated),
		errors.Is(err, service.ErrUnfinishedBookingExists):
		return http.StatusConflict

	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusPaymentRequired

	// Downstream failures
	case errors.Is(err, client.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, client.ErrServiceUnavailable):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
