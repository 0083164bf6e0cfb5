package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kzeybek/push-fanout/internal/domain"
)

type NotificationRepo struct {
	db *sqlx.DB
}

func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

type deliveryInsertRow struct {
	NotificationID int64 `db:"notification_id"`
	DeviceID       int64 `db:"device_id"`
}

// CreateWithDeliveries runs the whole fan-out in one transaction: the
// notification row, then the delivery rows in multi-row inserts of at most
// batchSize each. Any failure rolls everything back, including the
// notification itself.
func (r *NotificationRepo) CreateWithDeliveries(ctx context.Context, n *domain.Notification, devices []domain.Device, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO push_notifications (title, message, created_at)
		VALUES ($1, $2, $3) RETURNING id`,
		n.Title, n.Message, n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	for start := 0; start < len(devices); start += batchSize {
		end := start + batchSize
		if end > len(devices) {
			end = len(devices)
		}

		rows := make([]deliveryInsertRow, 0, end-start)
		for _, d := range devices[start:end] {
			rows = append(rows, deliveryInsertRow{NotificationID: n.ID, DeviceID: d.ID})
		}

		_, err = tx.NamedExecContext(ctx,
			`INSERT INTO notification_devices (notification_id, device_id)
			VALUES (:notification_id, :device_id)`,
			rows,
		)
		if err != nil {
			return fmt.Errorf("insert delivery batch: %w", err)
		}
	}

	return tx.Commit()
}

// ClaimQueued flips up to limit of the oldest queued delivery rows to
// in_progress and returns them as dispatch candidates. SKIP LOCKED makes
// the claim exclusive across concurrent drain runs.
func (r *NotificationRepo) ClaimQueued(ctx context.Context, limit int) ([]domain.DeliveryCandidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	var candidates []domain.DeliveryCandidate
	err := r.db.SelectContext(ctx, &candidates,
		`WITH picked AS (
			SELECT id FROM notification_devices
			WHERE status = $1
			ORDER BY created_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		), claimed AS (
			UPDATE notification_devices nd
			SET status = $3, updated_at = now()
			FROM picked
			WHERE nd.id = picked.id
			RETURNING nd.id, nd.notification_id, nd.device_id, nd.created_at
		)
		SELECT c.id, c.notification_id, n.title, n.message, d.token
		FROM claimed c
		JOIN push_notifications n ON n.id = c.notification_id
		JOIN devices d ON d.id = c.device_id
		ORDER BY c.created_at, c.id`,
		domain.StatusQueued, limit, domain.StatusInProgress,
	)
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// MarkDelivery records the terminal outcome for one claimed row. The status
// guard keeps the transition one-directional; a row already resolved or
// swept back to the queue is left untouched.
func (r *NotificationRepo) MarkDelivery(ctx context.Context, deliveryID int64, status domain.DeliveryStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notification_devices
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		status, deliveryID, domain.StatusInProgress,
	)
	return err
}

func (r *NotificationRepo) RequeueStale(ctx context.Context, olderThan time.Duration, limit int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notification_devices
		SET status = $1, updated_at = now()
		WHERE id IN (
			SELECT id FROM notification_devices
			WHERE status = $2 AND updated_at < now() - $3::interval
			ORDER BY updated_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)`,
		domain.StatusQueued, domain.StatusInProgress, olderThan.String(), limit,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Details aggregates delivery counts through an inner join, so a
// notification with no delivery rows comes back as not found.
func (r *NotificationRepo) Details(ctx context.Context, id int64) (*domain.NotificationDetails, error) {
	var details domain.NotificationDetails
	err := r.db.GetContext(ctx, &details,
		`SELECT n.id, n.title, n.message,
			COUNT(*) FILTER (WHERE nd.status = 2) AS sent,
			COUNT(*) FILTER (WHERE nd.status = 3) AS failed,
			COUNT(*) FILTER (WHERE nd.status = 1) AS in_progress,
			COUNT(*) FILTER (WHERE nd.status = 0) AS in_queue
		FROM push_notifications n
		JOIN notification_devices nd ON nd.notification_id = n.id
		WHERE n.id = $1
		GROUP BY n.id, n.title, n.message`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &details, nil
}

func (r *NotificationRepo) StatusTotals(ctx context.Context) (*domain.StatusTotals, error) {
	var totals domain.StatusTotals
	err := r.db.GetContext(ctx, &totals,
		`SELECT
			COUNT(*) FILTER (WHERE status = 0) AS in_queue,
			COUNT(*) FILTER (WHERE status = 1) AS in_progress,
			COUNT(*) FILTER (WHERE status = 2) AS sent,
			COUNT(*) FILTER (WHERE status = 3) AS failed
		FROM notification_devices`,
	)
	if err != nil {
		return nil, err
	}
	return &totals, nil
}
