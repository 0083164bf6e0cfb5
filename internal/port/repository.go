package port

import (
	"context"
	"time"

	"github.com/kzeybek/push-fanout/internal/domain"
)

type NotificationRepository interface {
	// CreateWithDeliveries inserts the notification and one queued delivery
	// record per device in a single transaction, chunking the delivery
	// inserts into batches of batchSize rows. On error nothing is persisted.
	// The notification's ID is populated on success.
	CreateWithDeliveries(ctx context.Context, n *domain.Notification, devices []domain.Device, batchSize int) error

	// ClaimQueued atomically flips up to limit queued delivery records,
	// oldest first, to in_progress and returns them joined with their
	// notification and device token. A record is returned by exactly one
	// caller even under concurrent drains.
	ClaimQueued(ctx context.Context, limit int) ([]domain.DeliveryCandidate, error)

	// MarkDelivery records the terminal outcome of one claimed record.
	MarkDelivery(ctx context.Context, deliveryID int64, status domain.DeliveryStatus) error

	// RequeueStale returns in_progress records older than olderThan back to
	// the queue, up to limit rows, and reports how many were reset.
	RequeueStale(ctx context.Context, olderThan time.Duration, limit int) (int64, error)

	// Details aggregates one notification's delivery records by status.
	// Returns domain.ErrNotificationNotFound for an unknown id or a
	// notification with no delivery records.
	Details(ctx context.Context, id int64) (*domain.NotificationDetails, error)

	// StatusTotals counts delivery records by status across the whole queue.
	StatusTotals(ctx context.Context) (*domain.StatusTotals, error)
}
