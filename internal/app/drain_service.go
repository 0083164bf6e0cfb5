package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kzeybek/push-fanout/internal/domain"
	"github.com/kzeybek/push-fanout/internal/port"
	"github.com/kzeybek/push-fanout/pkg/tracing"
)

// DrainService claims queued delivery records in bounded pages and
// dispatches each one through the push transport, tracking per-notification
// outcomes for the run.
type DrainService struct {
	repo        port.NotificationRepository
	transport   port.PushTransport
	broadcaster port.StatusBroadcaster
	events      port.EventPublisher
	logger      *zap.Logger
	pageSize    int
	concurrency int
	limiter     *rate.Limiter
	sendTimeout time.Duration
}

type DrainConfig struct {
	PageSize    int
	Concurrency int
	SendRate    int
	SendTimeout time.Duration
}

func NewDrainService(
	repo port.NotificationRepository,
	transport port.PushTransport,
	broadcaster port.StatusBroadcaster,
	events port.EventPublisher,
	logger *zap.Logger,
	cfg DrainConfig,
) *DrainService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	limit := rate.Inf
	if cfg.SendRate > 0 {
		limit = rate.Limit(cfg.SendRate)
	}
	return &DrainService{
		repo:        repo,
		transport:   transport,
		broadcaster: broadcaster,
		events:      events,
		logger:      logger,
		pageSize:    cfg.PageSize,
		concurrency: cfg.Concurrency,
		limiter:     rate.NewLimiter(limit, cfg.Concurrency),
		sendTimeout: cfg.SendTimeout,
	}
}

// Run drains at most deviceCap queued records, oldest first, across all
// notifications. Pages are claimed, dispatched and discarded one at a time
// so peak memory is bounded by the page size, not the queue depth. A claim
// failure aborts only the remaining pages; outcomes recorded so far are
// returned alongside the error.
func (s *DrainService) Run(ctx context.Context, deviceCap int) ([]domain.DrainReport, error) {
	ctx, span := tracing.Tracer().Start(ctx, "drain.run")
	defer span.End()

	span.SetAttributes(attribute.Int("drain.device_cap", deviceCap))

	tally := newRunTally()
	if deviceCap <= 0 {
		return tally.reports(), nil
	}

	work := make(chan domain.DeliveryCandidate)
	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range work {
				s.dispatch(ctx, c, tally)
			}
		}()
	}

	var runErr error
	claimed := 0

pages:
	for claimed < deviceCap {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		page := s.pageSize
		if rest := deviceCap - claimed; rest < page {
			page = rest
		}

		candidates, err := s.repo.ClaimQueued(ctx, page)
		if err != nil {
			runErr = fmt.Errorf("claim queued page: %w", err)
			break
		}
		if len(candidates) == 0 {
			break
		}
		claimed += len(candidates)

		for _, c := range candidates {
			select {
			case work <- c:
			case <-ctx.Done():
				// Undispatched claims stay in_progress; the stale-claim
				// sweep returns them to the queue.
				runErr = ctx.Err()
				break pages
			}
		}
	}

	close(work)
	wg.Wait()

	reports := tally.reports()

	var sent, failed int
	for _, r := range reports {
		sent += r.Sent
		failed += r.Failed
		s.broadcaster.Broadcast(r)
	}
	span.SetAttributes(
		attribute.Int("drain.claimed", claimed),
		attribute.Int("drain.sent", sent),
		attribute.Int("drain.failed", failed),
	)

	if len(reports) > 0 {
		if err := s.events.DrainCompleted(ctx, reports); err != nil {
			s.logger.Warn("drain event publish failed", zap.Error(err))
		}
	}

	if runErr != nil {
		tracing.RecordError(span, runErr)
		s.logger.Error("drain run aborted",
			zap.Int("claimed", claimed),
			zap.Int("sent", sent),
			zap.Int("failed", failed),
			zap.Error(runErr),
		)
		return reports, runErr
	}

	s.logger.Info("drain run finished",
		zap.Int("claimed", claimed),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
		zap.String("trace_id", tracing.TraceIDFromContext(ctx)),
	)
	return reports, nil
}

// dispatch resolves one claimed record. A stopped run leaves the record
// in_progress for the sweeper instead of inventing a failure.
func (s *DrainService) dispatch(ctx context.Context, c domain.DeliveryCandidate, tally *runTally) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	status := domain.StatusSent
	if err := s.push(ctx, c); err != nil {
		if ctx.Err() != nil {
			return
		}
		status = domain.StatusFailed
		s.logger.Warn("push delivery failed",
			zap.Int64("delivery_id", c.DeliveryID),
			zap.Int64("notification_id", c.NotificationID),
			zap.Error(err),
		)
	}

	if err := s.repo.MarkDelivery(ctx, c.DeliveryID, status); err != nil {
		// One record's status write must not take down the run.
		s.logger.Error("delivery status write failed",
			zap.Int64("delivery_id", c.DeliveryID),
			zap.String("status", status.String()),
			zap.Error(err),
		)
	}

	tally.add(c, status)
}

// push confines transport errors and panics to a plain error result.
func (s *DrainService) push(ctx context.Context, c domain.DeliveryCandidate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	return s.transport.Send(sendCtx, c.Title, c.Message, c.Token)
}

// runTally accumulates per-notification counters in first-claimed order.
type runTally struct {
	mu    sync.Mutex
	order []int64
	byID  map[int64]*domain.DrainReport
}

func newRunTally() *runTally {
	return &runTally{byID: make(map[int64]*domain.DrainReport)}
}

func (t *runTally) add(c domain.DeliveryCandidate, status domain.DeliveryStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.byID[c.NotificationID]
	if !ok {
		r = &domain.DrainReport{
			NotificationID: c.NotificationID,
			Title:          c.Title,
			Message:        c.Message,
		}
		t.byID[c.NotificationID] = r
		t.order = append(t.order, c.NotificationID)
	}

	if status == domain.StatusSent {
		r.Sent++
	} else {
		r.Failed++
	}
}

func (t *runTally) reports() []domain.DrainReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	reports := make([]domain.DrainReport, 0, len(t.order))
	for _, id := range t.order {
		reports = append(reports, *t.byID[id])
	}
	return reports
}
