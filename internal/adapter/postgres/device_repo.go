package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/kzeybek/push-fanout/internal/domain"
)

// DeviceRepo reads the externally-owned users/devices tables. This service
// never writes to them.
type DeviceRepo struct {
	db *sqlx.DB
}

func NewDeviceRepo(db *sqlx.DB) *DeviceRepo {
	return &DeviceRepo{db: db}
}

func (r *DeviceRepo) ActiveByCountry(ctx context.Context, countryID int64) ([]domain.Device, error) {
	var devices []domain.Device
	err := r.db.SelectContext(ctx, &devices,
		`SELECT d.id, d.token, d.expired
		FROM users u
		JOIN devices d ON d.user_id = u.id
		WHERE u.country_id = $1 AND d.expired = false
		ORDER BY d.id`,
		countryID,
	)
	if err != nil {
		return nil, err
	}
	return devices, nil
}
