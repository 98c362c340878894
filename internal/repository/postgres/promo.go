package postgres

import (
	"context"
	"database/sql"
	"errors"

	"ridesvc/internal/domain"
	"ridesvc/internal/repository"
)

// PromoCodeRepository is a PostgreSQL implementation of repository.PromoCodeRepository.
type PromoCodeRepository struct {
	q Querier
}

// NewPromoCodeRepository creates a new PostgreSQL promo code repository.
func NewPromoCodeRepository(db *sql.DB) *PromoCodeRepository {
	return &PromoCodeRepository{q: db}
}

// GetByName retrieves a promo code by name.
func (r *PromoCodeRepository) GetByName(ctx context.Context, name string) (*domain.PromoCode, error) {
	query := `SELECT id, name, discount, start_date, end_date FROM promo_codes WHERE name = $1`

	var promo domain.PromoCode
	err := r.q.QueryRowContext(ctx, query, name).Scan(
		&promo.ID,
		&promo.Name,
		&promo.Discount,
		&promo.Start,
		&promo.End,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &promo, nil
}
