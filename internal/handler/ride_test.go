package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"ridesvc/internal/client"
	"ridesvc/internal/domain"
	"ridesvc/internal/repository"
	"ridesvc/internal/service"
)

// stubRideService returns canned results and records its inputs.
type stubRideService struct {
	ride    *domain.Ride
	details []service.RideDetails
	err     error

	gotOrder  service.OrderRequest
	gotID     string
	gotRating int
	gotPage   [2]int
}

func (s *stubRideService) Order(ctx context.Context, req service.OrderRequest) (*domain.Ride, error) {
	s.gotOrder = req
	return s.ride, s.err
}

func (s *stubRideService) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	s.gotID = id
	return s.ride, s.err
}

func (s *stubRideService) GetAll(ctx context.Context, page, size int) ([]service.RideDetails, error) {
	s.gotPage = [2]int{page, size}
	return s.details, s.err
}

func (s *stubRideService) Update(ctx context.Context, id string, req service.UpdateRideRequest) (*domain.Ride, error) {
	s.gotID = id
	return s.ride, s.err
}

func (s *stubRideService) Delete(ctx context.Context, id string) error {
	s.gotID = id
	return s.err
}

func (s *stubRideService) FinishByDriver(ctx context.Context, id string, rating int) (*domain.Ride, error) {
	s.gotID, s.gotRating = id, rating
	return s.ride, s.err
}

func (s *stubRideService) CancelByPassenger(ctx context.Context, id string) (*domain.Ride, error) {
	s.gotID = id
	return s.ride, s.err
}

func (s *stubRideService) UpdateDriverRating(ctx context.Context, id string, rating int) (*domain.Ride, error) {
	s.gotID, s.gotRating = id, rating
	return s.ride, s.err
}

func newRideRouter(svc RideService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewRideHandler(svc)
	r := gin.New()
	rides := r.Group("/v1/rides")
	rides.POST("", h.OrderRide)
	rides.GET("", h.ListRides)
	rides.GET("/:id", h.GetRide)
	rides.PUT("/:id", h.UpdateRide)
	rides.DELETE("/:id", h.DeleteRide)
	rides.PUT("/:id/finish", h.FinishRide)
	rides.PUT("/:id/cancel", h.CancelRide)
	rides.PUT("/:id/:driverRating", h.RateDriver)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOrderRide_Created(t *testing.T) {
	t.Parallel()

	svc := &stubRideService{ride: domain.NewPendingRide("ride-1", "A", "B", 42, 12.5, 0, 3, time.Now())}
	w := do(newRideRouter(svc), http.MethodPost, "/v1/rides",
		`{"start_location":"A","end_location":"B","passenger_id":42,"bank_card_id":3,"promo_code_name":"HALF"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body)
	}
	if svc.gotOrder.PassengerID != 42 || svc.gotOrder.BankCardID != 3 || svc.gotOrder.PromoCodeName != "HALF" {
		t.Errorf("unexpected order request %+v", svc.gotOrder)
	}

	var resp RideResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "ride-1" || resp.Status != "PENDING" || resp.Cost != 12.5 || resp.FinishTime != nil {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestOrderRide_ErrorMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		err  error
		code int
	}{
		{err: service.ErrUnfinishedBookingExists, code: http.StatusConflict},
		{err: fmt.Errorf("%w: balance 5.00, cost 10.00", service.ErrInsufficientFunds), code: http.StatusPaymentRequired},
		{err: client.ErrCircuitOpen, code: http.StatusServiceUnavailable},
		{err: fmt.Errorf("%w: Passenger not found", client.ErrNotFound), code: http.StatusNotFound},
	}

	for _, tc := range testCases {
		svc := &stubRideService{err: tc.err}
		w := do(newRideRouter(svc), http.MethodPost, "/v1/rides", `{"start_location":"A","end_location":"B","passenger_id":42}`)
		if w.Code != tc.code {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.code, w.Code)
		}
		var resp ErrorResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Error != tc.err.Error() {
			t.Errorf("expected error text %q, got %q", tc.err.Error(), resp.Error)
		}
	}
}

func TestOrderRide_BadBody(t *testing.T) {
	t.Parallel()

	w := do(newRideRouter(&stubRideService{}), http.MethodPost, "/v1/rides", `{`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRoutes_FinishCancelAndRateAreDistinct(t *testing.T) {
	t.Parallel()

	ride := domain.NewPendingRide("ride-1", "A", "B", 42, 10, 0, 0, time.Now())
	svc := &stubRideService{ride: ride}
	r := newRideRouter(svc)

	if w := do(r, http.MethodPut, "/v1/rides/ride-1/finish", `{"passenger_rating":4}`); w.Code != http.StatusOK {
		t.Fatalf("finish: expected 200, got %d: %s", w.Code, w.Body)
	}
	if svc.gotID != "ride-1" || svc.gotRating != 4 {
		t.Errorf("finish: unexpected input %s/%d", svc.gotID, svc.gotRating)
	}

	if w := do(r, http.MethodPut, "/v1/rides/ride-1/cancel", ""); w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", w.Code)
	}

	if w := do(r, http.MethodPut, "/v1/rides/ride-1/5", ""); w.Code != http.StatusOK {
		t.Fatalf("rate: expected 200, got %d", w.Code)
	}
	if svc.gotRating != 5 {
		t.Errorf("rate: expected rating 5, got %d", svc.gotRating)
	}

	if w := do(r, http.MethodPut, "/v1/rides/ride-1/high", ""); w.Code != http.StatusBadRequest {
		t.Errorf("rate: expected 400 for non-numeric rating, got %d", w.Code)
	}
}

func TestFinishRide_RequiresRating(t *testing.T) {
	t.Parallel()

	w := do(newRideRouter(&stubRideService{}), http.MethodPut, "/v1/rides/ride-1/finish", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCancelRide_ActiveIsConflict(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("%w: cannot cancel ride in status ACTIVE", domain.ErrInvalidRideStatus)
	w := do(newRideRouter(&stubRideService{err: err}), http.MethodPut, "/v1/rides/ride-1/cancel", "")
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestListRides_PagingAndCar(t *testing.T) {
	t.Parallel()

	active := domain.NewPendingRide("ride-1", "A", "B", 42, 10, 0, 0, time.Now())
	_ = active.Assign(7, time.Now())
	svc := &stubRideService{details: []service.RideDetails{
		{Ride: active, Car: &domain.Car{DriverID: 7, Model: "Kia", Colour: "red", Number: "7777"}},
		{Ride: domain.NewPendingRide("ride-2", "C", "D", 43, 10, 0, 0, time.Now())},
	}}

	w := do(newRideRouter(svc), http.MethodGet, "/v1/rides?page=2&size=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.gotPage != [2]int{2, 5} {
		t.Errorf("unexpected paging %v", svc.gotPage)
	}

	var resp RidePageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Rides) != 2 || resp.Rides[0].Car == nil || resp.Rides[0].Car.Model != "Kia" || resp.Rides[1].Car != nil {
		t.Errorf("unexpected page %+v", resp)
	}
}

func TestGetAndDelete(t *testing.T) {
	t.Parallel()

	r := newRideRouter(&stubRideService{err: repository.ErrNotFound})
	if w := do(r, http.MethodGet, "/v1/rides/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("get: expected 404, got %d", w.Code)
	}

	r = newRideRouter(&stubRideService{})
	if w := do(r, http.MethodDelete, "/v1/rides/ride-1", ""); w.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", w.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	t.Parallel()

	deadline := fmt.Errorf("%w: driver: %w", client.ErrServiceUnavailable, context.DeadlineExceeded)

	testCases := []struct {
		name string
		err  error
		code int
	}{
		{name: "ride not found", err: repository.ErrNotFound, code: http.StatusNotFound},
		{name: "promo not found", err: service.ErrPromoCodeNotFound, code: http.StatusNotFound},
		{name: "bank card not found", err: service.ErrBankCardNotFound, code: http.StatusNotFound},
		{name: "invalid status", err: domain.ErrInvalidRideStatus, code: http.StatusConflict},
		{name: "already rated", err: domain.ErrAlreadyRated, code: http.StatusConflict},
		{name: "invalid rating", err: domain.ErrInvalidRating, code: http.StatusBadRequest},
		{name: "date order", err: service.ErrDateOrder, code: http.StatusBadRequest},
		{name: "invalid request", err: service.ErrInvalidRequest, code: http.StatusBadRequest},
		{name: "unavailable", err: client.ErrServiceUnavailable, code: http.StatusBadGateway},
		{name: "deadline", err: deadline, code: http.StatusGatewayTimeout},
		{name: "joined effects", err: errors.Join(client.ErrCircuitOpen, client.ErrServiceUnavailable), code: http.StatusServiceUnavailable},
		{name: "unknown", err: errors.New("boom"), code: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.code {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.code, got)
		}
	}
}
