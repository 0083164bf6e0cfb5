package port

import (
	"context"

	"github.com/kzeybek/push-fanout/internal/domain"
)

// EventPublisher emits lifecycle events for downstream consumers.
// Publishing is best effort: callers log failures and continue.
type EventPublisher interface {
	NotificationQueued(ctx context.Context, n *domain.Notification, deviceCount int) error
	DrainCompleted(ctx context.Context, reports []domain.DrainReport) error
	Close() error
}

// StatusBroadcaster pushes drain summaries to connected observers.
type StatusBroadcaster interface {
	Broadcast(report domain.DrainReport)
}

// SendRequestHandler processes one ingested send request.
type SendRequestHandler func(ctx context.Context, title, message string, countryID int64) error

// RequestConsumer ingests send requests from a message stream.
type RequestConsumer interface {
	Start(ctx context.Context, handler SendRequestHandler) error
	Stop(ctx context.Context) error
}
