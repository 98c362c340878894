package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"ridesvc/internal/client"
	"ridesvc/internal/domain"
	"ridesvc/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is an in-memory RideRepository with the same
// compare-and-set semantics as the Postgres implementation.
type MockRideRepository struct {
	mu    sync.RWMutex
	rides map[string]*domain.Ride

	// Counters for verification
	CreateCallCount         int32
	UpdateIfStatusCallCount int32

	// Error injection
	CreateError         error
	GetError            error
	UpdateIfStatusError error
	GetPageError        error

	// BeforeUpdate runs inside Update and UpdateIfStatus before the status
	// check, to simulate a concurrent writer.
	BeforeUpdate func(stored *domain.Ride)
}

// NewMockRideRepository creates a new mock ride repository.
func NewMockRideRepository() *MockRideRepository {
	return &MockRideRepository{
		rides: make(map[string]*domain.Ride),
	}
}

func copyRide(r *domain.Ride) *domain.Ride {
	c := *r
	if r.DriverRating != nil {
		v := *r.DriverRating
		c.DriverRating = &v
	}
	if r.PassengerRating != nil {
		v := *r.PassengerRating
		c.PassengerRating = &v
	}
	return &c
}

// AddRide stores a ride directly.
func (m *MockRideRepository) AddRide(ride *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[ride.ID] = copyRide(ride)
}

// Stored returns a copy of the stored ride or nil.
func (m *MockRideRepository) Stored(id string) *domain.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil
	}
	return copyRide(r)
}

// Count returns the number of stored rides.
func (m *MockRideRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rides)
}

func (m *MockRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rides {
		if r.PassengerID == ride.PassengerID && r.FinishTime.IsZero() {
			return repository.ErrDuplicate
		}
	}
	m.rides[ride.ID] = copyRide(ride)
	return nil
}

func (m *MockRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	if r := m.Stored(id); r != nil {
		return r, nil
	}
	return nil, repository.ErrNotFound
}

func (m *MockRideRepository) GetPage(ctx context.Context, limit, offset int) ([]*domain.Ride, error) {
	if m.GetPageError != nil {
		return nil, m.GetPageError
	}
	m.mu.RLock()
	all := make([]*domain.Ride, 0, len(m.rides))
	for _, r := range m.rides {
		all = append(all, copyRide(r))
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].BookingTime.After(all[j].BookingTime) })
	if offset >= len(all) {
		return []*domain.Ride{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *MockRideRepository) Update(ctx context.Context, id string, edit repository.RideEdit, status domain.RideStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rides[id]
	if !ok {
		return repository.ErrConflict
	}
	if m.BeforeUpdate != nil {
		m.BeforeUpdate(stored)
	}
	if stored.Status != status {
		return repository.ErrConflict
	}
	if edit.StartLocation != nil {
		stored.StartLocation = *edit.StartLocation
	}
	if edit.EndLocation != nil {
		stored.EndLocation = *edit.EndLocation
	}
	if edit.BookingTime != nil {
		stored.BookingTime = *edit.BookingTime
	}
	if edit.ApprovedTime != nil {
		stored.ApprovedTime = *edit.ApprovedTime
	}
	if edit.StartTime != nil {
		stored.StartTime = *edit.StartTime
	}
	if edit.FinishTime != nil {
		stored.FinishTime = *edit.FinishTime
	}
	return nil
}

func (m *MockRideRepository) UpdateIfStatus(ctx context.Context, ride *domain.Ride, from ...domain.RideStatus) error {
	atomic.AddInt32(&m.UpdateIfStatusCallCount, 1)
	if m.UpdateIfStatusError != nil {
		return m.UpdateIfStatusError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rides[ride.ID]
	if !ok {
		return repository.ErrConflict
	}
	if m.BeforeUpdate != nil {
		m.BeforeUpdate(stored)
	}
	for _, s := range from {
		if stored.Status == s {
			stored.DriverID = ride.DriverID
			stored.ApprovedTime = ride.ApprovedTime
			stored.StartTime = ride.StartTime
			stored.FinishTime = ride.FinishTime
			if ride.PassengerRating != nil {
				v := *ride.PassengerRating
				stored.PassengerRating = &v
			}
			stored.Status = ride.Status
			return nil
		}
	}
	return repository.ErrConflict
}

func (m *MockRideRepository) RateDriver(ctx context.Context, id string, rating int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rides[id]
	if !ok || stored.DriverRating != nil {
		return repository.ErrConflict
	}
	stored.DriverRating = &rating
	return nil
}

func (m *MockRideRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.rides, id)
	return nil
}

func (m *MockRideRepository) HasUnfinishedRide(ctx context.Context, passengerID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.PassengerID == passengerID && r.FinishTime.IsZero() {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockRideRepository) AverageDriverRating(ctx context.Context, driverID int64) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum, n int
	for _, r := range m.rides {
		if r.DriverID == driverID && r.DriverRating != nil {
			sum += *r.DriverRating
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

func (m *MockRideRepository) AveragePassengerRating(ctx context.Context, passengerID int64) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum, n int
	for _, r := range m.rides {
		if r.PassengerID == passengerID && r.PassengerRating != nil {
			sum += *r.PassengerRating
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

func (m *MockRideRepository) FindStalePending(ctx context.Context, before time.Time, limit int) ([]*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Ride
	for _, r := range m.rides {
		if r.Status == domain.RideStatusPending && r.BookingTime.Before(before) && len(result) < limit {
			result = append(result, copyRide(r))
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────
// MOCK PROMO CODE REPOSITORY AND CACHES
// ──────────────────────────────────────────────

type MockPromoRepository struct {
	mu     sync.RWMutex
	promos map[string]*domain.PromoCode

	GetCallCount int32
}

func NewMockPromoRepository(promos ...*domain.PromoCode) *MockPromoRepository {
	m := &MockPromoRepository{promos: make(map[string]*domain.PromoCode)}
	for _, p := range promos {
		m.promos[p.Name] = p
	}
	return m
}

func (m *MockPromoRepository) GetByName(ctx context.Context, name string) (*domain.PromoCode, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.promos[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *p
	return &c, nil
}

type MockPromoCache struct {
	mu     sync.Mutex
	promos map[string]*domain.PromoCode
}

func NewMockPromoCache() *MockPromoCache {
	return &MockPromoCache{promos: make(map[string]*domain.PromoCode)}
}

func (m *MockPromoCache) GetPromoCode(ctx context.Context, name string) (*domain.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promos[name], nil
}

func (m *MockPromoCache) SetPromoCode(ctx context.Context, promo *domain.PromoCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promos[promo.Name] = promo
	return nil
}

type MockDriverCache struct {
	mu      sync.Mutex
	drivers map[int64]*domain.Driver

	InvalidateCallCount int32
}

func NewMockDriverCache() *MockDriverCache {
	return &MockDriverCache{drivers: make(map[int64]*domain.Driver)}
}

func (m *MockDriverCache) GetDriversBatch(ctx context.Context, ids []int64) (map[int64]*domain.Driver, []int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hits := make(map[int64]*domain.Driver)
	var missing []int64
	for _, id := range ids {
		if d, ok := m.drivers[id]; ok {
			hits[id] = d
			continue
		}
		missing = append(missing, id)
	}
	return hits, missing, nil
}

func (m *MockDriverCache) SetDriversBatch(ctx context.Context, drivers []*domain.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range drivers {
		m.drivers[d.ID] = d
	}
	return nil
}

func (m *MockDriverCache) InvalidateDriver(ctx context.Context, driverID int64) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drivers, driverID)
	return nil
}

// ──────────────────────────────────────────────
// MOCK REMOTE SERVICES
// ──────────────────────────────────────────────

type MockPassengerClient struct {
	mu          sync.Mutex
	passengers  map[int64]*domain.Passenger
	settlements []client.Settlement

	GetError    error
	SettleError error
}

func NewMockPassengerClient(passengers ...*domain.Passenger) *MockPassengerClient {
	m := &MockPassengerClient{passengers: make(map[int64]*domain.Passenger)}
	for _, p := range passengers {
		m.passengers[p.ID] = p
	}
	return m
}

func (m *MockPassengerClient) GetPassenger(ctx context.Context, id int64) (*domain.Passenger, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.passengers[id]
	if !ok {
		return nil, client.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *MockPassengerClient) SettleAfterRide(ctx context.Context, passengerID int64, s client.Settlement) error {
	if m.SettleError != nil {
		return m.SettleError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements = append(m.settlements, s)
	return nil
}

func (m *MockPassengerClient) Settlements() []client.Settlement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]client.Settlement(nil), m.settlements...)
}

type MockDriverClient struct {
	mu       sync.Mutex
	drivers  map[int64]*domain.Driver
	released []int64
	ratings  map[int64]float64

	GetDriversCallCount int32

	GetDriversError   error
	SetAvailableError error
	SetRatingError    error
}

func NewMockDriverClient(drivers ...*domain.Driver) *MockDriverClient {
	m := &MockDriverClient{
		drivers: make(map[int64]*domain.Driver),
		ratings: make(map[int64]float64),
	}
	for _, d := range drivers {
		m.drivers[d.ID] = d
	}
	return m
}

func (m *MockDriverClient) GetDrivers(ctx context.Context, ids []int64) ([]*domain.Driver, error) {
	atomic.AddInt32(&m.GetDriversCallCount, 1)
	if m.GetDriversError != nil {
		return nil, m.GetDriversError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Driver
	for _, id := range ids {
		if d, ok := m.drivers[id]; ok {
			result = append(result, d)
		}
	}
	return result, nil
}

func (m *MockDriverClient) SetAvailable(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, id)
	return m.SetAvailableError
}

func (m *MockDriverClient) SetRating(ctx context.Context, id int64, rating float64) error {
	if m.SetRatingError != nil {
		return m.SetRatingError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratings[id] = rating
	return nil
}

// Released returns the driver ids passed to SetAvailable.
func (m *MockDriverClient) Released() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.released...)
}

func (m *MockDriverClient) Rating(id int64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ratings[id]
	return r, ok
}

// ──────────────────────────────────────────────
// MOCK SEARCH CHANNEL AND LOCKS
// ──────────────────────────────────────────────

type MockSearchRequester struct {
	mu      sync.Mutex
	rideIDs []string

	Error error
}

func (m *MockSearchRequester) RequestSearch(ctx context.Context, rideID string) error {
	if m.Error != nil {
		return m.Error
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rideIDs = append(m.rideIDs, rideID)
	return nil
}

func (m *MockSearchRequester) Requested() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.rideIDs...)
}

type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]string

	ReleaseCallCount int32
}

func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]string)}
}

func (m *MockLockStore) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if holder, held := m.locks[key]; held && holder != owner {
		return false, nil
	}
	m.locks[key] = owner
	return true, nil
}

func (m *MockLockStore) ReleaseLock(ctx context.Context, key, owner string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] == owner {
		delete(m.locks, key)
	}
	return nil
}

// ──────────────────────────────────────────────
// FIXTURE
// ──────────────────────────────────────────────

type fixture struct {
	rides      *MockRideRepository
	promos     *MockPromoRepository
	passengers *MockPassengerClient
	drivers    *MockDriverClient
	search     *MockSearchRequester
	cache      *MockDriverCache
	svc        *RideService
}

func newFixture() *fixture {
	f := &fixture{
		rides: NewMockRideRepository(),
		promos: NewMockPromoRepository(&domain.PromoCode{
			ID: 1, Name: "HALF", Discount: 0.5,
			Start: time.Now().Add(-time.Hour), End: time.Now().Add(time.Hour),
		}),
		passengers: NewMockPassengerClient(&domain.Passenger{
			ID: 42,
			BankCards: []domain.BankCard{
				{ID: 1, Balance: 5, PassengerID: 42},
				{ID: 2, Balance: 100, PassengerID: 42},
			},
		}),
		drivers: NewMockDriverClient(
			&domain.Driver{ID: 7, Car: &domain.Car{DriverID: 7, Model: "Kia", Number: "7777"}},
			&domain.Driver{ID: 8, Car: &domain.Car{DriverID: 8, Model: "Skoda", Number: "8888"}},
		),
		search: &MockSearchRequester{},
		cache:  NewMockDriverCache(),
	}

	pricing := NewPricingService(f.promos, NewMockPromoCache(), zap.NewNop())
	pricing.random = func() float64 { return 0 } // base fare 10.00

	f.svc = NewRideService(f.rides, pricing, f.passengers, f.drivers, f.search, f.cache, zap.NewNop())
	return f
}

// addRide stores a ride in the given status with consistent lifecycle fields.
func (f *fixture) addRide(id string, passengerID int64, status domain.RideStatus) *domain.Ride {
	now := time.Now()
	ride := domain.NewPendingRide(id, "A", "B", passengerID, 10, 0, 2, now.Add(-time.Minute))
	switch status {
	case domain.RideStatusActive:
		_ = ride.Assign(7, now)
	case domain.RideStatusFinished:
		_ = ride.Assign(7, now)
		_ = ride.Finish(now, 5)
	case domain.RideStatusNoDrivers:
		_ = ride.MarkNoDrivers()
	case domain.RideStatusCanceled:
		_ = ride.Cancel(now)
	}
	f.rides.AddRide(ride)
	return ride
}
