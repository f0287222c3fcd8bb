package models

import "time"

// Payment records one settlement of a booking. PaymentIntentID is unique and
// is what makes webhook delivery idempotent.
type Payment struct {
	ID              string        `bson:"id" json:"id"`
	CustomerID      string        `bson:"customerId" json:"customerId"`
	BookingID       string        `bson:"bookingId" json:"bookingId"`
	Method          PaymentMethod `bson:"method" json:"method"`
	Status          PaymentStatus `bson:"status" json:"status"`
	TransactionID   string        `bson:"transactionId" json:"transactionId"`
	PaymentIntentID string        `bson:"paymentIntentId,omitempty" json:"paymentIntentId,omitempty"`
	Amount          float64       `bson:"amount" json:"amount"`
	Currency        string        `bson:"currency" json:"currency"`
	GatewayPayload  string        `bson:"gatewayPayload,omitempty" json:"-"`
	RefundID        string        `bson:"refundId,omitempty" json:"refundId,omitempty"`
	CreatedAt       time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time     `bson:"updatedAt" json:"updatedAt"`
}
