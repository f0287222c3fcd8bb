package models

import "time"

type BidStatus string

const (
	BidPending     BidStatus = "PENDING"
	BidAccepted    BidStatus = "ACCEPTED"
	BidRejected    BidStatus = "REJECTED"
	BidOnTheWay    BidStatus = "ON_THE_WAY"
	BidWorkStarted BidStatus = "WORK_STARTED"
	BidCompleted   BidStatus = "COMPLETED"
	BidCancelled   BidStatus = "CANCELLED"
)

var bidStatusRank = map[BidStatus]int{
	BidPending:     0,
	BidAccepted:    1,
	BidOnTheWay:    2,
	BidWorkStarted: 3,
	BidCompleted:   4,
}

// Rank orders the forward progression; REJECTED and CANCELLED return -1.
func (s BidStatus) Rank() int {
	if r, ok := bidStatusRank[s]; ok {
		return r
	}
	return -1
}

// IsAcceptedStage is true once the bid has been chosen and until it ends.
func (s BidStatus) IsAcceptedStage() bool {
	return s.Rank() >= bidStatusRank[BidAccepted]
}

// IsOpen reports whether the bid still competes for its booking.
func (s BidStatus) IsOpen() bool {
	return s == BidPending || s == BidAccepted
}

// Bid is a provider's priced offer for one booking.
type Bid struct {
	ID                string               `bson:"id" json:"id"`
	ProviderID        string               `bson:"providerId" json:"providerId"`
	BookingID         string               `bson:"bookingId" json:"bookingId"`
	Rate              float64              `bson:"rate" json:"rate"`
	Status            BidStatus            `bson:"status" json:"status"`
	StatusChangeTimes map[string]time.Time `bson:"statusChangeTimes,omitempty" json:"statusChangeTimes,omitempty"`
	IsAccepted        bool                 `bson:"isAccepted" json:"isAccepted"`
	CancelReason      string               `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`
	IsDeleted         bool                 `bson:"isDeleted" json:"-"`
	CreatedAt         time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// SetStatus updates status, the isAccepted mirror and the change time.
func (b *Bid) SetStatus(status BidStatus, at time.Time) {
	b.Status = status
	b.IsAccepted = status.IsAcceptedStage()
	if b.StatusChangeTimes == nil {
		b.StatusChangeTimes = map[string]time.Time{}
	}
	b.StatusChangeTimes[string(status)] = at
	b.UpdatedAt = at
}

type BidInput struct {
	BookingID string  `json:"bookingId" validate:"required"`
	Rate      float64 `json:"rate" validate:"required,gt=0"`
}
