package repository

import (
	"context"

	"ridesvc/internal/domain"
)

// PromoCodeRepository reads promo codes. Codes are managed elsewhere.
type PromoCodeRepository interface {
	// GetByName retrieves a promo code by its unique name.
	GetByName(ctx context.Context, name string) (*domain.PromoCode, error)
}
