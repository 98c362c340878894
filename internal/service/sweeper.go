package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"ridesvc/internal/redis"
	"ridesvc/internal/repository"
)

const sweepLockKey = "lock:sweep:pending"

// SweeperConfig configures the PendingSweeper.
type SweeperConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

// PendingSweeper republishes search requests for rides stuck in PENDING,
// e.g. after a lost publish. Instances compete for a Redis lock; the
// holder keeps sweeping every interval until it stops.
type PendingSweeper struct {
	rideRepo repository.RideRepository
	search   SearchRequester
	locks    redis.LockStoreInterface
	cfg      SweeperConfig
	owner    string
	nrApp    *newrelic.Application
	logger   *zap.Logger
	now      func() time.Time
}

// NewPendingSweeper creates a PendingSweeper. locks and nrApp may be nil.
func NewPendingSweeper(
	rideRepo repository.RideRepository,
	search SearchRequester,
	locks redis.LockStoreInterface,
	cfg SweeperConfig,
	nrApp *newrelic.Application,
	logger *zap.Logger,
) *PendingSweeper {
	return &PendingSweeper{
		rideRepo: rideRepo,
		search:   search,
		locks:    locks,
		cfg:      cfg,
		owner:    uuid.New().String(),
		nrApp:    nrApp,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is done.
func (s *PendingSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.releaseLock()
			return
		case <-ticker.C:
			txn := s.nrApp.StartTransaction("sweep/pending")
			n, err := s.Sweep(newrelic.NewContext(ctx, txn))
			if err != nil {
				txn.NoticeError(err)
				s.logger.Error("pending sweep failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("republished stale pending rides", zap.Int("count", n))
			}
			txn.End()
		}
	}
}

// Sweep republishes stale PENDING rides once and returns how many were
// republished. It does nothing when another instance holds the lock.
func (s *PendingSweeper) Sweep(ctx context.Context) (int, error) {
	if s.locks != nil {
		// The holder renews the lock each tick; it lapses one interval after
		// the holder stops.
		acquired, err := s.locks.AcquireLock(ctx, sweepLockKey, s.owner, s.cfg.Interval)
		if err != nil {
			return 0, err
		}
		if !acquired {
			return 0, nil
		}
	}

	rides, err := s.rideRepo.FindStalePending(ctx, s.now().Add(-s.cfg.StaleAfter), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, ride := range rides {
		if err := s.search.RequestSearch(ctx, ride.ID); err != nil {
			s.logger.Warn("republish search request failed", zap.String("ride_id", ride.ID), zap.Error(err))
			continue
		}
		published++
	}
	return published, nil
}

// releaseLock hands the sweep over to another instance on shutdown.
func (s *PendingSweeper) releaseLock() {
	if s.locks == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.locks.ReleaseLock(ctx, sweepLockKey, s.owner); err != nil {
		s.logger.Warn("release sweep lock failed", zap.Error(err))
	}
}
