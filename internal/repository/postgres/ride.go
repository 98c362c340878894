package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"ridesvc/internal/domain"
	"ridesvc/internal/repository"
)

// uniqueViolation is the SQLSTATE raised by a unique index conflict.
const uniqueViolation = "23505"

const rideColumns = `id, start_location, end_location, passenger_id, booking_time, cost,
	promo_code_id, bank_card_id, driver_id, approved_time, start_time, finish_time,
	driver_rating, passenger_rating, status`

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.StartLocation,
		ride.EndLocation,
		ride.PassengerID,
		ride.BookingTime,
		ride.Cost,
		nullInt64(ride.PromoCodeID),
		nullInt64(ride.BankCardID),
		nullInt64(ride.DriverID),
		nullTime(ride.ApprovedTime),
		nullTime(ride.StartTime),
		nullTime(ride.FinishTime),
		nullRating(ride.DriverRating),
		nullRating(ride.PassengerRating),
		ride.Status,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return repository.ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// GetPage retrieves rides ordered by booking time, newest first.
func (r *RideRepository) GetPage(ctx context.Context, limit, offset int) ([]*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + `
		FROM rides ORDER BY booking_time DESC, id LIMIT $1 OFFSET $2
	`
	return r.queryRides(ctx, query, limit, offset)
}

// Update writes the fields set in edit, provided the ride is still in status.
func (r *RideRepository) Update(ctx context.Context, id string, edit repository.RideEdit, status domain.RideStatus) error {
	query := `
		UPDATE rides
		SET start_location = COALESCE($1::varchar, start_location),
			end_location = COALESCE($2::varchar, end_location),
			booking_time = COALESCE($3::timestamptz, booking_time),
			approved_time = COALESCE($4::timestamptz, approved_time),
			start_time = COALESCE($5::timestamptz, start_time),
			finish_time = COALESCE($6::timestamptz, finish_time)
		WHERE id = $7 AND status = $8
	`

	result, err := r.q.ExecContext(ctx, query,
		optString(edit.StartLocation),
		optString(edit.EndLocation),
		optTime(edit.BookingTime),
		optTime(edit.ApprovedTime),
		optTime(edit.StartTime),
		optTime(edit.FinishTime),
		id,
		status,
	)
	if err != nil {
		return err
	}
	return expectRow(result, repository.ErrConflict)
}

// UpdateIfStatus writes the lifecycle fields only if the stored status is
// one of from.
func (r *RideRepository) UpdateIfStatus(ctx context.Context, ride *domain.Ride, from ...domain.RideStatus) error {
	query := `
		UPDATE rides
		SET driver_id = $1, approved_time = $2, start_time = $3, finish_time = $4,
			passenger_rating = $5, status = $6
		WHERE id = $7 AND status = ANY($8)
	`

	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	result, err := r.q.ExecContext(ctx, query,
		nullInt64(ride.DriverID),
		nullTime(ride.ApprovedTime),
		nullTime(ride.StartTime),
		nullTime(ride.FinishTime),
		nullRating(ride.PassengerRating),
		ride.Status,
		ride.ID,
		pq.Array(statuses),
	)
	if err != nil {
		return err
	}
	return expectRow(result, repository.ErrConflict)
}

// RateDriver sets the driver rating only if it is still unset.
func (r *RideRepository) RateDriver(ctx context.Context, id string, rating int) error {
	query := `UPDATE rides SET driver_rating = $1 WHERE id = $2 AND driver_rating IS NULL`

	result, err := r.q.ExecContext(ctx, query, rating, id)
	if err != nil {
		return err
	}
	return expectRow(result, repository.ErrConflict)
}

// Delete removes a ride.
func (r *RideRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM rides WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(result, repository.ErrNotFound)
}

// HasUnfinishedRide reports whether the passenger has a ride without a finish time.
func (r *RideRepository) HasUnfinishedRide(ctx context.Context, passengerID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM rides WHERE passenger_id = $1 AND finish_time IS NULL)`

	var exists bool
	if err := r.q.QueryRowContext(ctx, query, passengerID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// AverageDriverRating returns the mean rating given to the driver, or zero
// when the driver has no rated rides.
func (r *RideRepository) AverageDriverRating(ctx context.Context, driverID int64) (float64, error) {
	query := `SELECT AVG(driver_rating) FROM rides WHERE driver_id = $1 AND driver_rating IS NOT NULL`
	return r.average(ctx, query, driverID)
}

// AveragePassengerRating returns the mean rating given to the passenger, or
// zero when the passenger has no rated rides.
func (r *RideRepository) AveragePassengerRating(ctx context.Context, passengerID int64) (float64, error) {
	query := `SELECT AVG(passenger_rating) FROM rides WHERE passenger_id = $1 AND passenger_rating IS NOT NULL`
	return r.average(ctx, query, passengerID)
}

// FindStalePending returns up to limit PENDING rides booked before the cutoff.
func (r *RideRepository) FindStalePending(ctx context.Context, before time.Time, limit int) ([]*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + `
		FROM rides WHERE status = $1 AND booking_time < $2
		ORDER BY booking_time LIMIT $3
	`
	return r.queryRides(ctx, query, domain.RideStatusPending, before, limit)
}

func (r *RideRepository) average(ctx context.Context, query string, id int64) (float64, error) {
	var avg sql.NullFloat64
	if err := r.q.QueryRowContext(ctx, query, id).Scan(&avg); err != nil {
		return 0, err
	}
	return avg.Float64, nil
}

func (r *RideRepository) queryRides(ctx context.Context, query string, args ...any) ([]*domain.Ride, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rides := make([]*domain.Ride, 0)
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var promoCodeID, bankCardID, driverID sql.NullInt64
	var approvedTime, startTime, finishTime sql.NullTime
	var driverRating, passengerRating sql.NullInt32

	err := row.Scan(
		&ride.ID,
		&ride.StartLocation,
		&ride.EndLocation,
		&ride.PassengerID,
		&ride.BookingTime,
		&ride.Cost,
		&promoCodeID,
		&bankCardID,
		&driverID,
		&approvedTime,
		&startTime,
		&finishTime,
		&driverRating,
		&passengerRating,
		&ride.Status,
	)
	if err != nil {
		return nil, err
	}

	ride.PromoCodeID = promoCodeID.Int64
	ride.BankCardID = bankCardID.Int64
	ride.DriverID = driverID.Int64
	if approvedTime.Valid {
		ride.ApprovedTime = approvedTime.Time
	}
	if startTime.Valid {
		ride.StartTime = startTime.Time
	}
	if finishTime.Valid {
		ride.FinishTime = finishTime.Time
	}
	if driverRating.Valid {
		v := int(driverRating.Int32)
		ride.DriverRating = &v
	}
	if passengerRating.Valid {
		v := int(passengerRating.Int32)
		ride.PassengerRating = &v
	}

	return &ride, nil
}

func expectRow(result sql.Result, errNoRow error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return errNoRow
	}
	return nil
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullRating(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

func optString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func optTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
