package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kzeybek/push-fanout/internal/domain"
	"github.com/kzeybek/push-fanout/internal/port"
	"github.com/kzeybek/push-fanout/pkg/tracing"
)

// NotificationService creates notifications, fans them out into delivery
// records, and answers the details query.
type NotificationService struct {
	repo      port.NotificationRepository
	devices   port.DeviceDirectory
	events    port.EventPublisher
	logger    *zap.Logger
	batchSize int
}

func NewNotificationService(
	repo port.NotificationRepository,
	devices port.DeviceDirectory,
	events port.EventPublisher,
	logger *zap.Logger,
	batchSize int,
) *NotificationService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &NotificationService{
		repo:      repo,
		devices:   devices,
		events:    events,
		logger:    logger,
		batchSize: batchSize,
	}
}

type SendInput struct {
	Title     string
	Message   string
	CountryID int64
}

// Send validates the input, resolves the country's active devices and
// creates the notification plus one queued delivery record per device as
// a single atomic operation. Zero eligible devices is not an error.
func (s *NotificationService) Send(ctx context.Context, input SendInput) (int64, error) {
	ctx, span := tracing.Tracer().Start(ctx, "notification.send")
	defer span.End()

	span.SetAttributes(attribute.Int64("notification.country_id", input.CountryID))

	notification, err := domain.NewNotification(input.Title, input.Message)
	if err != nil {
		tracing.RecordError(span, err)
		return 0, err
	}
	if err := domain.ValidateCountryID(input.CountryID); err != nil {
		tracing.RecordError(span, err)
		return 0, err
	}

	devices, err := s.devices.ActiveByCountry(ctx, input.CountryID)
	if err != nil {
		tracing.RecordError(span, err)
		return 0, fmt.Errorf("resolve devices: %w", err)
	}

	span.SetAttributes(attribute.Int("fanout.device_count", len(devices)))

	if err := s.repo.CreateWithDeliveries(ctx, notification, devices, s.batchSize); err != nil {
		tracing.RecordError(span, err)
		return 0, fmt.Errorf("fan out notification: %w", err)
	}

	span.SetAttributes(attribute.Int64("notification.id", notification.ID))

	if err := s.events.NotificationQueued(ctx, notification, len(devices)); err != nil {
		s.logger.Warn("notification event publish failed",
			zap.Int64("notification_id", notification.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("notification queued",
		zap.Int64("notification_id", notification.ID),
		zap.Int64("country_id", input.CountryID),
		zap.Int("device_count", len(devices)),
		zap.String("trace_id", tracing.TraceIDFromContext(ctx)),
	)

	return notification.ID, nil
}

// Details reports per-status delivery counts for one notification. A
// notification that fanned out to zero devices is reported as not found;
// the aggregation joins through its delivery records.
func (s *NotificationService) Details(ctx context.Context, id int64) (*domain.NotificationDetails, error) {
	ctx, span := tracing.Tracer().Start(ctx, "notification.details")
	defer span.End()

	span.SetAttributes(attribute.Int64("notification.id", id))

	details, err := s.repo.Details(ctx, id)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return details, nil
}
