package payment

import (
	"context"
	"errors"
	"math"
)

// Gateway event types the settlement flow consumes.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventTransferCreated   = "transfer.created"
)

// Checkout session states.
const (
	SessionOpen     = "open"
	SessionComplete = "complete"
	SessionExpired  = "expired"
	SessionPaid     = "paid"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

type CheckoutRequest struct {
	Amount         float64
	Currency       string
	Description    string
	CustomerID     string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

type CheckoutSession struct {
	ID              string
	URL             string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	AmountTotal     float64
	Currency        string
	Metadata        map[string]string
	Raw             []byte
}

// Paid reports whether the customer completed the payment.
func (s *CheckoutSession) Paid() bool {
	return s.Status == SessionComplete && s.PaymentStatus == SessionPaid
}

type TransferRequest struct {
	Amount         float64
	Currency       string
	Destination    string
	Metadata       map[string]string
	IdempotencyKey string
}

type Transfer struct {
	ID       string
	Amount   float64
	Metadata map[string]string
}

type RefundRequest struct {
	PaymentIntentID string
	Amount          float64
	Metadata        map[string]string
	IdempotencyKey  string
}

type Refund struct {
	ID     string
	Status string
}

// Event is a verified webhook delivery. Exactly one of Checkout or Transfer is
// set for the types the flow consumes.
type Event struct {
	ID       string
	Type     string
	Checkout *CheckoutSession
	Transfer *Transfer
	Raw      []byte
}

// Gateway is the external payment provider. Every mutating call carries an
// idempotency key so retries never double charge or double pay.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error)
	AvailableBalance(ctx context.Context, currency string) (float64, error)
	PayoutsEnabled(ctx context.Context, accountID string) (bool, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// ToMinorUnits converts an amount to cents.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromMinorUnits converts cents to an amount.
func FromMinorUnits(minor int64) float64 {
	return float64(minor) / 100
}
