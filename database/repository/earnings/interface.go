package earningsRepo

import (
	"context"
	"errors"

	"bidmarket/models"
)

var (
	ErrNotFound = errors.New("earnings ledger not found")
	// ErrInsufficientBalance is returned when a decrement would make a balance negative.
	ErrInsufficientBalance = errors.New("ledger balance would go negative")
)

type EarningsRepository interface {
	Get(ctx context.Context, providerID string) (*models.EarningsLedger, error)
	// Apply adds delta to the provider's ledger atomically. Increments upsert the
	// ledger; any decrement requires the affected balances to cover it.
	Apply(ctx context.Context, providerID, currency string, delta models.LedgerDelta) (*models.EarningsLedger, error)
}
