package settlementRepo

import (
	"context"
	"errors"
	"time"

	"bidmarket/models"
)

var ErrNotFound = errors.New("settlement intent not found")

// SettlementRepository persists pending online settlements until the gateway confirms them.
type SettlementRepository interface {
	Create(ctx context.Context, intent *models.SettlementIntent) error
	GetByCheckoutSession(ctx context.Context, sessionID string) (*models.SettlementIntent, error)
	// GetOpenByBooking returns the newest OPEN intent of a booking.
	GetOpenByBooking(ctx context.Context, bookingID string) (*models.SettlementIntent, error)
	Update(ctx context.Context, intent *models.SettlementIntent) error
	// ListStale returns OPEN intents not checked since before the given time.
	ListStale(ctx context.Context, before time.Time, limit int64) ([]models.SettlementIntent, error)
}
