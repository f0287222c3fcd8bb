package memoryRepo

import (
	"context"
	"time"

	earningsRepo "bidmarket/database/repository/earnings"
	"bidmarket/models"
)

type earningsStore struct{ *Store }

// Earnings returns the store's EarningsRepository.
func (s *Store) Earnings() earningsRepo.EarningsRepository { return earningsStore{s} }

func (r earningsStore) Get(ctx context.Context, providerID string) (*models.EarningsLedger, error) {
	defer r.lock(ctx)()
	l, ok := r.ledgers[providerID]
	if !ok {
		return nil, earningsRepo.ErrNotFound
	}
	return &l, nil
}

func (r earningsStore) Apply(ctx context.Context, providerID, currency string, delta models.LedgerDelta) (*models.EarningsLedger, error) {
	defer r.lock(ctx)()
	l, ok := r.ledgers[providerID]
	if !ok {
		if delta.HasDecrement() {
			return nil, earningsRepo.ErrInsufficientBalance
		}
		l = models.EarningsLedger{ProviderID: providerID, Currency: currency}
	}

	if !covers(l.TotalEarnings, delta.TotalEarnings) ||
		!covers(l.AmountTransferred, delta.AmountTransferred) ||
		!covers(l.PendingTransfer, delta.PendingTransfer) ||
		!covers(l.ReservedTransfer, delta.ReservedTransfer) ||
		!covers(l.AdminDue, delta.AdminDue) {
		return nil, earningsRepo.ErrInsufficientBalance
	}

	l.TotalEarnings += delta.TotalEarnings
	l.AmountTransferred += delta.AmountTransferred
	l.PendingTransfer += delta.PendingTransfer
	l.ReservedTransfer += delta.ReservedTransfer
	l.AdminDue += delta.AdminDue
	l.UpdatedAt = time.Now()
	r.ledgers[providerID] = l
	return &l, nil
}

func covers(balance, d float64) bool {
	return d >= 0 || balance >= -d
}
