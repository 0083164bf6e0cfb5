package port

import (
	"context"

	"github.com/kzeybek/push-fanout/internal/domain"
)

// DeviceDirectory resolves the active device tokens for a country.
// Owned by an external system; this service only reads from it.
type DeviceDirectory interface {
	ActiveByCountry(ctx context.Context, countryID int64) ([]domain.Device, error)
}
