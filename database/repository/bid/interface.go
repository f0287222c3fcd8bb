package bidRepo

import (
	"context"
	"errors"
	"time"

	"bidmarket/models"
)

var (
	// ErrNotFound is returned when no bid matches.
	ErrNotFound = errors.New("bid not found")
	// ErrDuplicate is returned when the provider already bid on the booking.
	ErrDuplicate = errors.New("provider already has a bid on this booking")
)

// BidRepository defines methods for bid data access. Bids are the owning side of
// the booking relation and are found by the indexed bookingId.
type BidRepository interface {
	Create(ctx context.Context, bid *models.Bid) error
	GetByID(ctx context.Context, id string) (*models.Bid, error)
	Update(ctx context.Context, bid *models.Bid) error
	// ListByBooking returns the non-deleted bids of a booking.
	ListByBooking(ctx context.Context, bookingID string) ([]models.Bid, error)
	// FindByBookingAndProvider returns the provider's live bid on a booking.
	FindByBookingAndProvider(ctx context.Context, bookingID, providerID string) (*models.Bid, error)
	// SetStatusForBooking moves every bid of the booking whose status is in from
	// (except excludeID) to status to. It returns the number of bids changed.
	SetStatusForBooking(ctx context.Context, bookingID, excludeID string, from []models.BidStatus, to models.BidStatus, at time.Time) (int64, error)
}
