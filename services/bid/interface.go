package bid

import (
	"context"

	"bidmarket/models"
)

// BidService manages provider bids and walks the accepted bid through the job.
type BidService interface {
	Create(ctx context.Context, actor models.Actor, input models.BidInput) (*models.Bid, error)
	ChangeStatus(ctx context.Context, actor models.Actor, bidID string, next models.BidStatus) (*StatusResult, error)
	Cancel(ctx context.Context, actor models.Actor, bidID, reason string) (*models.Bid, error)
	Get(ctx context.Context, actor models.Actor, bidID string) (*models.Bid, error)
	ListForBooking(ctx context.Context, actor models.Actor, bookingID string) ([]models.Bid, error)
}

// StatusResult is the bid and its booking after a status change.
type StatusResult struct {
	Bid         *models.Bid     `json:"bid"`
	Booking     *models.Booking `json:"booking"`
	CheckoutURL string          `json:"checkoutUrl,omitempty"`
}
