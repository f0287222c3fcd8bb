package models

import "time"

// Notification types emitted by the booking engine.
const (
	NotifyNewBid            = "new_bid"
	NotifyBidAccepted       = "bid_accepted"
	NotifyBidRejected       = "bid_rejected"
	NotifyBidDisplaced      = "bid_displaced"
	NotifyBidStatus         = "bid_status"
	NotifyBookingCancelled  = "booking_cancelled"
	NotifyBookingReopened   = "booking_reopened"
	NotifyPaymentReceived   = "payment_received"
	NotifyCompletionCode    = "completion_code"
	NotifyPayoutTransferred = "payout_transferred"
	NotifyRefundIssued      = "refund_issued"
	NotifyInvoiceReady      = "invoice_ready"
)

type Notification struct {
	ReceiverID string            `json:"receiverId"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Type       string            `json:"type"`
	Reference  Reference         `json:"reference"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}
