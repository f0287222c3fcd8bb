package models

import "time"

// EarningsLedger holds a provider's running totals.
// At rest TotalEarnings == AmountTransferred + PendingTransfer + ReservedTransfer.
// ReservedTransfer is payout already netted and promised to an in-flight transfer.
type EarningsLedger struct {
	ProviderID        string    `bson:"providerId" json:"providerId"`
	TotalEarnings     float64   `bson:"totalEarnings" json:"totalEarnings"`
	AmountTransferred float64   `bson:"amountTransferred" json:"amountTransferred"`
	PendingTransfer   float64   `bson:"pendingTransfer" json:"pendingTransfer"`
	ReservedTransfer  float64   `bson:"reservedTransfer" json:"reservedTransfer"`
	AdminDue          float64   `bson:"adminDue" json:"adminDue"`
	Currency          string    `bson:"currency" json:"currency"`
	UpdatedAt         time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Balanced checks the at-rest invariant with a cent tolerance.
func (l *EarningsLedger) Balanced() bool {
	diff := l.TotalEarnings - (l.AmountTransferred + l.PendingTransfer + l.ReservedTransfer)
	return diff < 0.005 && diff > -0.005
}

// LedgerDelta is a set of signed increments applied atomically to a ledger.
type LedgerDelta struct {
	TotalEarnings     float64
	AmountTransferred float64
	PendingTransfer   float64
	ReservedTransfer  float64
	AdminDue          float64
}

// HasDecrement reports whether any component would lower a balance.
func (d LedgerDelta) HasDecrement() bool {
	return d.TotalEarnings < 0 || d.AmountTransferred < 0 || d.PendingTransfer < 0 ||
		d.ReservedTransfer < 0 || d.AdminDue < 0
}
