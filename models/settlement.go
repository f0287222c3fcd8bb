package models

import "time"

type SettlementStatus string

const (
	SettlementOpen      SettlementStatus = "OPEN"
	SettlementCompleted SettlementStatus = "COMPLETED"
	SettlementExpired   SettlementStatus = "EXPIRED"
	SettlementFailed    SettlementStatus = "FAILED"
)

// SettlementIntent is the persisted step of the online payment saga: a checkout
// was opened and the booking waits for the gateway to confirm it.
type SettlementIntent struct {
	ID                string           `bson:"id" json:"id"`
	BookingID         string           `bson:"bookingId" json:"bookingId"`
	BidID             string           `bson:"bidId" json:"bidId"`
	CustomerID        string           `bson:"customerId" json:"customerId"`
	Amount            float64          `bson:"amount" json:"amount"`
	Currency          string           `bson:"currency" json:"currency"`
	CheckoutSessionID string           `bson:"checkoutSessionId" json:"checkoutSessionId"`
	CheckoutURL       string           `bson:"checkoutUrl" json:"checkoutUrl"`
	PaymentIntentID   string           `bson:"paymentIntentId,omitempty" json:"paymentIntentId,omitempty"`
	IsBidChange       bool             `bson:"isBidChange" json:"isBidChange"`
	Receivers         []string         `bson:"receivers" json:"receivers"`
	Status            SettlementStatus `bson:"status" json:"status"`
	Attempts          int              `bson:"attempts" json:"attempts"`
	LastError         string           `bson:"lastError,omitempty" json:"lastError,omitempty"`
	LastCheckedAt     time.Time        `bson:"lastCheckedAt,omitempty" json:"lastCheckedAt,omitempty"`
	CreatedAt         time.Time        `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time        `bson:"updatedAt" json:"updatedAt"`
}
