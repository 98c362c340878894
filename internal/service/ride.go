package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ridesvc/internal/client"
	"ridesvc/internal/domain"
	"ridesvc/internal/redis"
	"ridesvc/internal/repository"
)

// PassengerClient is the part of the Passenger service the rides need.
type PassengerClient interface {
	GetPassenger(ctx context.Context, id int64) (*domain.Passenger, error)
	SettleAfterRide(ctx context.Context, passengerID int64, s client.Settlement) error
}

// DriverClient is the part of the Driver service the rides need.
type DriverClient interface {
	GetDrivers(ctx context.Context, ids []int64) ([]*domain.Driver, error)
	SetAvailable(ctx context.Context, id int64) error
	SetRating(ctx context.Context, id int64, rating float64) error
}

// SearchRequester starts an asynchronous driver search.
type SearchRequester interface {
	RequestSearch(ctx context.Context, rideID string) error
}

// Ensure the concrete clients satisfy the interfaces.
var (
	_ PassengerClient = (*client.PassengerClient)(nil)
	_ DriverClient    = (*client.DriverClient)(nil)
)

// RideService orchestrates ride ordering, driver matching and completion.
type RideService struct {
	rideRepo    repository.RideRepository
	pricing     *PricingService
	passengers  PassengerClient
	drivers     DriverClient
	search      SearchRequester
	driverCache redis.DriverCacheInterface
	logger      *zap.Logger
	now         func() time.Time
}

// NewRideService creates a new RideService. driverCache may be nil.
func NewRideService(
	rideRepo repository.RideRepository,
	pricing *PricingService,
	passengers PassengerClient,
	drivers DriverClient,
	search SearchRequester,
	driverCache redis.DriverCacheInterface,
	logger *zap.Logger,
) *RideService {
	return &RideService{
		rideRepo:    rideRepo,
		pricing:     pricing,
		passengers:  passengers,
		drivers:     drivers,
		search:      search,
		driverCache: driverCache,
		logger:      logger,
		now:         time.Now,
	}
}

// OrderRequest contains the parameters for ordering a ride.
type OrderRequest struct {
	StartLocation string
	EndLocation   string
	PassengerID   int64
	PromoCodeName string // Optional
	BankCardID    int64  // Optional: 0 means cash
}

// Order books a ride and starts the driver search.
//
// The ride is persisted as PENDING before the search request is published.
// A failed publish is logged and the ride is still returned; the pending
// sweeper republishes it later.
func (s *RideService) Order(ctx context.Context, req OrderRequest) (*domain.Ride, error) {
	if err := validateOrder(req); err != nil {
		return nil, err
	}

	unfinished, err := s.rideRepo.HasUnfinishedRide(ctx, req.PassengerID)
	if err != nil {
		return nil, err
	}
	if unfinished {
		return nil, ErrUnfinishedBookingExists
	}

	quote, err := s.pricing.Quote(ctx, req.PromoCodeName)
	if err != nil {
		return nil, err
	}

	passenger, err := s.passengers.GetPassenger(ctx, req.PassengerID)
	if err != nil {
		return nil, err
	}

	if req.BankCardID != 0 {
		card, ok := passenger.BankCard(req.BankCardID)
		if !ok {
			return nil, fmt.Errorf("%w: card %d of passenger %d", ErrBankCardNotFound, req.BankCardID, req.PassengerID)
		}
		if card.Balance < quote.Cost {
			return nil, fmt.Errorf("%w: balance %.2f, cost %.2f", ErrInsufficientFunds, card.Balance, quote.Cost)
		}
	}

	var promoID int64
	if quote.Promo != nil {
		promoID = quote.Promo.ID
	}

	ride := domain.NewPendingRide(
		uuid.New().String(),
		strings.TrimSpace(req.StartLocation),
		strings.TrimSpace(req.EndLocation),
		req.PassengerID,
		quote.Cost,
		promoID,
		req.BankCardID,
		s.now(),
	)

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUnfinishedBookingExists
		}
		return nil, err
	}

	// The search outlives the HTTP request.
	if err := s.search.RequestSearch(context.WithoutCancel(ctx), ride.ID); err != nil {
		s.logger.Error("publish driver search request failed",
			zap.String("ride_id", ride.ID),
			zap.Int64("passenger_id", ride.PassengerID),
			zap.Error(err),
		)
	}

	return ride, nil
}

func validateOrder(req OrderRequest) error {
	if strings.TrimSpace(req.StartLocation) == "" {
		return fmt.Errorf("%w: start location is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.EndLocation) == "" {
		return fmt.Errorf("%w: end location is required", ErrInvalidRequest)
	}
	if req.PassengerID <= 0 {
		return fmt.Errorf("%w: passenger id must be positive", ErrInvalidRequest)
	}
	if req.BankCardID < 0 {
		return fmt.Errorf("%w: bank card id must be positive", ErrInvalidRequest)
	}
	return nil
}

// GetByID retrieves a ride.
func (s *RideService) GetByID(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	return s.rideRepo.GetByID(ctx, rideID)
}

// RideDetails is a ride enriched with its driver's car.
type RideDetails struct {
	Ride *domain.Ride
	Car  *domain.Car // nil when the ride has no driver
}

// MaxPageSize bounds GetAll.
const MaxPageSize = 100

// GetAll returns one page of rides with car details. Rides with a driver
// come first. A Driver service failure fails the whole page.
func (s *RideService) GetAll(ctx context.Context, page, size int) ([]RideDetails, error) {
	if page < 0 || size <= 0 || size > MaxPageSize {
		return nil, fmt.Errorf("%w: page %d, size %d", ErrInvalidPage, page, size)
	}

	rides, err := s.rideRepo.GetPage(ctx, size, page*size)
	if err != nil {
		return nil, err
	}

	var withDriver, withoutDriver []*domain.Ride
	seen := make(map[int64]struct{})
	var driverIDs []int64
	for _, ride := range rides {
		if !ride.HasDriver() {
			withoutDriver = append(withoutDriver, ride)
			continue
		}
		withDriver = append(withDriver, ride)
		if _, ok := seen[ride.DriverID]; !ok {
			seen[ride.DriverID] = struct{}{}
			driverIDs = append(driverIDs, ride.DriverID)
		}
	}

	drivers, err := s.loadDrivers(ctx, driverIDs)
	if err != nil {
		return nil, err
	}

	result := make([]RideDetails, 0, len(rides))
	for _, ride := range withDriver {
		details := RideDetails{Ride: ride}
		if driver, ok := drivers[ride.DriverID]; ok {
			details.Car = driver.Car
		}
		result = append(result, details)
	}
	for _, ride := range withoutDriver {
		result = append(result, RideDetails{Ride: ride})
	}
	return result, nil
}

// loadDrivers resolves driver profiles from the cache and fetches the
// misses with one Driver service call.
func (s *RideService) loadDrivers(ctx context.Context, ids []int64) (map[int64]*domain.Driver, error) {
	drivers := make(map[int64]*domain.Driver, len(ids))
	if len(ids) == 0 {
		return drivers, nil
	}

	missing := ids
	if s.driverCache != nil {
		cached, miss, err := s.driverCache.GetDriversBatch(ctx, ids)
		if err != nil {
			s.logger.Warn("driver cache read failed", zap.Error(err))
		} else {
			for id, d := range cached {
				drivers[id] = d
			}
			missing = miss
		}
	}
	if len(missing) == 0 {
		return drivers, nil
	}

	fetched, err := s.drivers.GetDrivers(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, d := range fetched {
		drivers[d.ID] = d
	}

	if s.driverCache != nil {
		if err := s.driverCache.SetDriversBatch(ctx, fetched); err != nil {
			s.logger.Warn("driver cache write failed", zap.Error(err))
		}
	}
	return drivers, nil
}

// UpdateRideRequest contains the administrative fields of a ride.
// Empty or zero fields are left unchanged.
type UpdateRideRequest struct {
	StartLocation string
	EndLocation   string
	BookingTime   time.Time
	ApprovedTime  time.Time
	StartTime     time.Time
	FinishTime    time.Time
}

// Update edits locations and timestamps of a ride. Status and driver are
// only changed by the lifecycle operations. A lifecycle timestamp is only
// accepted when the ride's status carries it, and the write fails with
// domain.ErrInvalidRideStatus if the status changed since the ride was read.
func (s *RideService) Update(ctx context.Context, rideID string, req UpdateRideRequest) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	if err := checkCarriedTimes(ride.Status, req); err != nil {
		return nil, err
	}

	var edit repository.RideEdit
	if v := strings.TrimSpace(req.StartLocation); v != "" {
		ride.StartLocation = v
		edit.StartLocation = &v
	}
	if v := strings.TrimSpace(req.EndLocation); v != "" {
		ride.EndLocation = v
		edit.EndLocation = &v
	}
	if t := req.BookingTime; !t.IsZero() {
		ride.BookingTime = t
		edit.BookingTime = &t
	}
	if t := req.ApprovedTime; !t.IsZero() {
		ride.ApprovedTime = t
		edit.ApprovedTime = &t
	}
	if t := req.StartTime; !t.IsZero() {
		ride.StartTime = t
		edit.StartTime = &t
	}
	if t := req.FinishTime; !t.IsZero() {
		ride.FinishTime = t
		edit.FinishTime = &t
	}

	if err := checkDateOrder(ride.BookingTime, ride.ApprovedTime, ride.StartTime, ride.FinishTime); err != nil {
		return nil, err
	}

	if err := s.rideRepo.Update(ctx, rideID, edit, ride.Status); err != nil {
		return nil, lostRace(err, rideID)
	}
	return ride, nil
}

// checkCarriedTimes rejects timestamps the ride's status cannot have. A
// finish time on an open ride would end the passenger's booking.
func checkCarriedTimes(status domain.RideStatus, req UpdateRideRequest) error {
	if (!req.ApprovedTime.IsZero() || !req.StartTime.IsZero()) && !status.CarriesDriverTimes() {
		return fmt.Errorf("%w: ride in status %s has no approved or start time", domain.ErrInvalidRideStatus, status)
	}
	if !req.FinishTime.IsZero() && !status.CarriesFinishTime() {
		return fmt.Errorf("%w: ride in status %s has no finish time", domain.ErrInvalidRideStatus, status)
	}
	return nil
}

// checkDateOrder requires the set timestamps to be non-decreasing.
func checkDateOrder(times ...time.Time) error {
	var prev time.Time
	for _, t := range times {
		if t.IsZero() {
			continue
		}
		if !prev.IsZero() && t.Before(prev) {
			return fmt.Errorf("%w: %s is before %s", ErrDateOrder, t.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
		prev = t
	}
	return nil
}

// Delete removes a ride.
func (s *RideService) Delete(ctx context.Context, rideID string) error {
	if rideID == "" {
		return ErrInvalidRideID
	}

	return s.rideRepo.Delete(ctx, rideID)
}
