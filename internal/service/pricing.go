package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"ridesvc/internal/domain"
	"ridesvc/internal/redis"
	"ridesvc/internal/repository"
)

// Fare bounds; the base fare is drawn uniformly from [MinFare, MaxFare).
const (
	MinFare = 10.0
	MaxFare = 20.0
)

// Quote is the priced fare of a new ride.
type Quote struct {
	BaseFare float64
	Cost     float64
	Promo    *domain.PromoCode // nil when no promo code was applied
}

// PricingService computes ride fares and resolves promo codes.
type PricingService struct {
	promoRepo  repository.PromoCodeRepository
	promoCache redis.PromoCacheInterface
	random     func() float64
	now        func() time.Time
	logger     *zap.Logger
}

// NewPricingService creates a new PricingService. promoCache may be nil.
func NewPricingService(promoRepo repository.PromoCodeRepository, promoCache redis.PromoCacheInterface, logger *zap.Logger) *PricingService {
	return &PricingService{
		promoRepo:  promoRepo,
		promoCache: promoCache,
		random:     rand.Float64,
		now:        time.Now,
		logger:     logger,
	}
}

// Quote prices a ride, applying the named promo code when one is given.
func (s *PricingService) Quote(ctx context.Context, promoName string) (*Quote, error) {
	base := round2(MinFare + s.random()*(MaxFare-MinFare))
	if base >= MaxFare {
		base = MaxFare - 0.01
	}
	quote := &Quote{BaseFare: base, Cost: base}

	promoName = strings.TrimSpace(promoName)
	if promoName == "" {
		return quote, nil
	}

	promo, err := s.promoCode(ctx, promoName)
	if err != nil {
		return nil, err
	}
	if !promo.ActiveAt(s.now()) {
		return nil, fmt.Errorf("%w: %s is not active", ErrPromoCodeNotFound, promoName)
	}

	quote.Promo = promo
	quote.Cost = round2(base * promo.Discount)
	return quote, nil
}

func (s *PricingService) promoCode(ctx context.Context, name string) (*domain.PromoCode, error) {
	if s.promoCache != nil {
		cached, err := s.promoCache.GetPromoCode(ctx, name)
		if err != nil {
			s.logger.Warn("promo cache read failed", zap.String("promo", name), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	promo, err := s.promoRepo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPromoCodeNotFound, name)
		}
		return nil, err
	}

	if s.promoCache != nil {
		if err := s.promoCache.SetPromoCode(ctx, promo); err != nil {
			s.logger.Warn("promo cache write failed", zap.String("promo", name), zap.Error(err))
		}
	}
	return promo, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
