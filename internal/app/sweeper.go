package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kzeybek/push-fanout/internal/port"
)

// Sweeper returns delivery records left in_progress by crashed or stopped
// drain runs back to the queue once their claim has aged out.
type Sweeper struct {
	repo       port.NotificationRepository
	logger     *zap.Logger
	interval   time.Duration
	staleAfter time.Duration
	limit      int
}

func NewSweeper(repo port.NotificationRepository, logger *zap.Logger, staleAfter time.Duration) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &Sweeper{
		repo:       repo,
		logger:     logger,
		interval:   time.Minute,
		staleAfter: staleAfter,
		limit:      1000,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	requeued, err := s.repo.RequeueStale(ctx, s.staleAfter, s.limit)
	if err != nil {
		s.logger.Error("stale claim sweep failed", zap.Error(err))
		return
	}
	if requeued > 0 {
		s.logger.Warn("requeued stale deliveries",
			zap.Int64("count", requeued),
			zap.Duration("stale_after", s.staleAfter),
		)
	}
}
