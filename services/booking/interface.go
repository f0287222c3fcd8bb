package booking

import (
	"context"
	"time"

	"bidmarket/models"
)

// BookingService is the booking aggregate: it owns creation, acceptance of a
// bid, cancellation and the refund of a cancelled booking.
type BookingService interface {
	Create(ctx context.Context, actor models.Actor, draft models.BookingDraft) (*Result, error)
	AcceptBid(ctx context.Context, actor models.Actor, bookingID, bidID string, method models.PaymentMethod) (*Result, error)
	ChangeAcceptedBid(ctx context.Context, actor models.Actor, bookingID, bidID string, method models.PaymentMethod) (*Result, error)
	Cancel(ctx context.Context, actor models.Actor, bookingID, reason string) (*models.Booking, error)
	Refund(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error)
	VerifyCompletionCode(ctx context.Context, actor models.Actor, bookingID, code string) (*models.Booking, error)
	Get(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error)
	ListForCustomer(ctx context.Context, actor models.Actor) ([]models.Booking, error)
}

// Result is a booking after a command. CheckoutURL is set when the customer
// still has to pay online for the change to take effect.
type Result struct {
	Booking     *models.Booking `json:"booking"`
	CheckoutURL string          `json:"checkoutUrl,omitempty"`
}

// Locker serializes commands on one booking across instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
