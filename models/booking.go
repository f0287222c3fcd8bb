package models

import "time"

type BookingStatus string

const (
	BookingPending     BookingStatus = "PENDING"
	BookingConfirmed   BookingStatus = "CONFIRMED"
	BookingOnTheWay    BookingStatus = "ON_THE_WAY"
	BookingWorkStarted BookingStatus = "WORK_STARTED"
	BookingCompleted   BookingStatus = "COMPLETED"
	BookingCancelled   BookingStatus = "CANCELLED"
)

var bookingStatusRank = map[BookingStatus]int{
	BookingPending:     0,
	BookingConfirmed:   1,
	BookingOnTheWay:    2,
	BookingWorkStarted: 3,
	BookingCompleted:   4,
}

// Rank orders the forward progression. CANCELLED has no rank and returns -1.
func (s BookingStatus) Rank() int {
	if r, ok := bookingStatusRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether no further status mutation is allowed.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "CASH"
	PaymentOnline      PaymentMethod = "ONLINE"
	PaymentUnspecified PaymentMethod = "UNSPECIFIED"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentOnline || m == PaymentUnspecified
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// CanTransitionTo enforces UNPAID -> PAID -> REFUNDED.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentUnpaid:
		return next == PaymentPaid
	case PaymentPaid:
		return next == PaymentRefunded
	}
	return false
}

// LineItem is one catalog service ordered in a booking.
type LineItem struct {
	ServiceID  string  `bson:"serviceId" json:"serviceId" validate:"required"`
	Quantity   int     `bson:"quantity" json:"quantity" validate:"required,gt=0"`
	UnitCharge float64 `bson:"unitCharge" json:"unitCharge"`
}

// Booking is the canonical record of a customer's request and its settlement state.
// Bids are not embedded; they are looked up by bookingId.
type Booking struct {
	ID                   string               `bson:"id" json:"id"`
	CustomerID           string               `bson:"customerId" json:"customerId"`
	CategoryID           string               `bson:"categoryId" json:"categoryId"`
	LineItems            []LineItem           `bson:"lineItems" json:"lineItems"`
	CouponID             string               `bson:"couponId,omitempty" json:"couponId,omitempty"`
	TotalAmount          float64              `bson:"totalAmount" json:"totalAmount"`
	Discount             float64              `bson:"discount" json:"discount"`
	FinalAmount          float64              `bson:"finalAmount" json:"finalAmount"`
	Status               BookingStatus        `bson:"status" json:"status"`
	PaymentMethod        PaymentMethod        `bson:"paymentMethod" json:"paymentMethod"`
	PaymentStatus        PaymentStatus        `bson:"paymentStatus" json:"paymentStatus"`
	AcceptedBidID        string               `bson:"acceptedBidId,omitempty" json:"acceptedBidId,omitempty"`
	AssignedProviderID   string               `bson:"assignedProviderId,omitempty" json:"assignedProviderId,omitempty"`
	AdminRevenuePercent  float64              `bson:"adminRevenuePercent" json:"adminRevenuePercent"`
	IsPaymentTransferred bool                 `bson:"isPaymentTransferred" json:"isPaymentTransferred"`
	IsNeedRefund         bool                 `bson:"isNeedRefund" json:"isNeedRefund"`
	PaymentID            string               `bson:"paymentId,omitempty" json:"paymentId,omitempty"`
	TransferID           string               `bson:"transferId,omitempty" json:"transferId,omitempty"`
	AwaitingTransfer     bool                 `bson:"awaitingTransfer" json:"awaitingTransfer"`
	Payout               *PayoutPlan          `bson:"payout,omitempty" json:"payout,omitempty"`
	CancelReason         string               `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`
	CancelledBy          string               `bson:"cancelledBy,omitempty" json:"cancelledBy,omitempty"`
	CompletionCodeHash   string               `bson:"completionCodeHash,omitempty" json:"-"`
	CompletionVerified   bool                 `bson:"completionVerified" json:"completionVerified"`
	Attachments          []string             `bson:"attachments,omitempty" json:"attachments,omitempty"`
	StatusChangeTimes    map[string]time.Time `bson:"statusChangeTimes,omitempty" json:"statusChangeTimes,omitempty"`
	CreatedAt            time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// PayoutPlan is the netting reserved for a booking's payout. Once set it is the
// only source of the transfer amount; retries never recompute it.
type PayoutPlan struct {
	Payout       float64   `bson:"payout" json:"payout"`
	DueApplied   float64   `bson:"dueApplied" json:"dueApplied"`
	Transferable float64   `bson:"transferable" json:"transferable"`
	ReservedAt   time.Time `bson:"reservedAt" json:"reservedAt"`
}

// HasAcceptedBid reports whether a bid has been assigned.
func (b *Booking) HasAcceptedBid() bool {
	return b.AcceptedBidID != ""
}

// AssignBid sets the accepted bid and the provider together.
func (b *Booking) AssignBid(bidID, providerID string) {
	b.AcceptedBidID = bidID
	b.AssignedProviderID = providerID
}

// ClearAssignment removes the accepted bid and the provider together.
func (b *Booking) ClearAssignment() {
	b.AcceptedBidID = ""
	b.AssignedProviderID = ""
}

// SetStatus records the new status and when it happened.
func (b *Booking) SetStatus(status BookingStatus, at time.Time) {
	b.Status = status
	if b.StatusChangeTimes == nil {
		b.StatusChangeTimes = map[string]time.Time{}
	}
	b.StatusChangeTimes[string(status)] = at
	b.UpdatedAt = at
}

// ApplyQuote copies priced amounts onto the booking.
func (b *Booking) ApplyQuote(total, discount, final, revenuePercent float64) {
	b.TotalAmount = total
	b.Discount = discount
	b.FinalAmount = final
	b.AdminRevenuePercent = revenuePercent
}

// BookingDraft is the customer's input when creating a booking.
// ProviderID and Rate pre-seed the booking with an accepted bid (direct hire).
type BookingDraft struct {
	CategoryID    string        `json:"categoryId" validate:"required"`
	LineItems     []LineItem    `json:"lineItems" validate:"required,min=1,dive"`
	CouponCode    string        `json:"couponCode,omitempty"`
	PaymentMethod PaymentMethod `json:"paymentMethod" validate:"required,oneof=CASH ONLINE UNSPECIFIED"`
	ProviderID    string        `json:"providerId,omitempty"`
	Rate          float64       `json:"rate,omitempty" validate:"required_with=ProviderID,gte=0"`
	Attachments   []string      `json:"attachments,omitempty" validate:"omitempty,dive,url"`
}
