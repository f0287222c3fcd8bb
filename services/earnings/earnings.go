package earnings

import (
	"context"
	"errors"
	"math"

	earningsRepo "bidmarket/database/repository/earnings"
	userRepo "bidmarket/database/repository/user"
	"bidmarket/models"
	"bidmarket/utils"

	"go.uber.org/zap"
)

// Netting is the outcome of offsetting a provider's admin due against a payout.
type Netting struct {
	Payout       float64
	DueApplied   float64
	Transferable float64
}

// Ledger keeps per-provider earnings. Every change is one conditional atomic
// update so balances never go negative.
type Ledger struct {
	repo     earningsRepo.EarningsRepository
	users    userRepo.UserRepository
	currency string
	logger   *zap.Logger
}

func NewLedger(repo earningsRepo.EarningsRepository, users userRepo.UserRepository, currency string, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{repo: repo, users: users, currency: currency, logger: logger}
}

// Get returns the provider's ledger, empty if nothing was ever credited.
func (l *Ledger) Get(ctx context.Context, providerID string) (*models.EarningsLedger, error) {
	ledger, err := l.repo.Get(ctx, providerID)
	if errors.Is(err, earningsRepo.ErrNotFound) {
		return &models.EarningsLedger{ProviderID: providerID, Currency: l.currency}, nil
	}
	if err != nil {
		return nil, utils.Internal(err, "failed to load earnings")
	}
	return ledger, nil
}

// Credit books the provider's share of an online payment as pending transfer.
func (l *Ledger) Credit(ctx context.Context, providerID string, gross, adminCut float64) (*models.EarningsLedger, error) {
	net, err := providerShare(gross, adminCut)
	if err != nil {
		return nil, err
	}
	return l.apply(ctx, providerID, models.LedgerDelta{TotalEarnings: net, PendingTransfer: net})
}

// CreditCollected books a cash payment the provider collected directly.
func (l *Ledger) CreditCollected(ctx context.Context, providerID string, gross, adminCut float64) (*models.EarningsLedger, error) {
	net, err := providerShare(gross, adminCut)
	if err != nil {
		return nil, err
	}
	return l.apply(ctx, providerID, models.LedgerDelta{TotalEarnings: net, AmountTransferred: net})
}

// RecordTransfer moves amount from pending to transferred.
func (l *Ledger) RecordTransfer(ctx context.Context, providerID string, amount float64) (*models.EarningsLedger, error) {
	return l.ApplyNetting(ctx, providerID, Netting{Payout: amount, Transferable: amount})
}

// AddAdminDue adds platform revenue the provider owes.
func (l *Ledger) AddAdminDue(ctx context.Context, providerID string, amount float64) (*models.EarningsLedger, error) {
	if amount < 0 {
		return nil, utils.Internal(nil, "admin due increment %.2f is negative", amount)
	}
	ledger, err := l.apply(ctx, providerID, models.LedgerDelta{AdminDue: amount})
	if err != nil {
		return nil, err
	}
	l.mirrorDue(ctx, ledger)
	return ledger, nil
}

// NetAdminDue plans how a payout offsets the provider's admin due. It does not
// write; ReserveNetting plans and books in one step.
func (l *Ledger) NetAdminDue(ctx context.Context, providerID string, payout float64) (Netting, error) {
	if payout < 0 {
		return Netting{}, utils.Internal(nil, "payout %.2f is negative", payout)
	}
	ledger, err := l.Get(ctx, providerID)
	if err != nil {
		return Netting{}, err
	}

	n := Netting{Payout: payout}
	if ledger.AdminDue > payout {
		n.DueApplied = payout
		return n, nil
	}
	n.DueApplied = ledger.AdminDue
	n.Transferable = roundCents(payout - ledger.AdminDue)
	return n, nil
}

// ApplyNetting settles a payout: the due shrinks by what was offset and the
// whole payout leaves pending.
func (l *Ledger) ApplyNetting(ctx context.Context, providerID string, n Netting) (*models.EarningsLedger, error) {
	ledger, err := l.apply(ctx, providerID, models.LedgerDelta{
		PendingTransfer:   -n.Payout,
		AmountTransferred: n.Payout,
		AdminDue:          -n.DueApplied,
	})
	if err != nil {
		return nil, err
	}
	if n.DueApplied > 0 {
		l.mirrorDue(ctx, ledger)
	}
	return ledger, nil
}

// ReserveNetting plans the netting of payout against the current admin due and
// books it at once: the due shrinks, the payout leaves pending, and the part still
// to be sent moves to reserved. Run it in the transaction that records the plan
// so two payouts can never net the same due.
func (l *Ledger) ReserveNetting(ctx context.Context, providerID string, payout float64) (Netting, error) {
	n, err := l.NetAdminDue(ctx, providerID, payout)
	if err != nil {
		return Netting{}, err
	}
	ledger, err := l.apply(ctx, providerID, models.LedgerDelta{
		PendingTransfer:   -n.Payout,
		ReservedTransfer:  n.Transferable,
		AmountTransferred: n.DueApplied,
		AdminDue:          -n.DueApplied,
	})
	if err != nil {
		return Netting{}, err
	}
	if n.DueApplied > 0 {
		l.mirrorDue(ctx, ledger)
	}
	return n, nil
}

// SettleReserved books a reserved amount as transferred once the gateway took it.
func (l *Ledger) SettleReserved(ctx context.Context, providerID string, amount float64) (*models.EarningsLedger, error) {
	if amount < 0 {
		return nil, utils.Internal(nil, "reserved amount %.2f is negative", amount)
	}
	return l.apply(ctx, providerID, models.LedgerDelta{
		ReservedTransfer:  -amount,
		AmountTransferred: amount,
	})
}

func (l *Ledger) apply(ctx context.Context, providerID string, delta models.LedgerDelta) (*models.EarningsLedger, error) {
	ledger, err := l.repo.Apply(ctx, providerID, l.currency, delta)
	if errors.Is(err, earningsRepo.ErrInsufficientBalance) {
		l.logger.Error("ledger update would go negative",
			zap.String("providerId", providerID), zap.Any("delta", delta))
		return nil, utils.Internal(err, "earnings ledger of provider %s cannot cover the update", providerID).
			WithCode("LEDGER_NEGATIVE")
	}
	if err != nil {
		return nil, utils.Internal(err, "failed to update earnings")
	}
	return ledger, nil
}

// mirrorDue copies adminDue onto the provider profile. The ledger is the source of truth.
func (l *Ledger) mirrorDue(ctx context.Context, ledger *models.EarningsLedger) {
	if l.users == nil {
		return
	}
	if err := l.users.SetAdminDue(ctx, ledger.ProviderID, ledger.AdminDue); err != nil {
		l.logger.Warn("failed to mirror admin due on profile",
			zap.String("providerId", ledger.ProviderID), zap.Error(err))
	}
}

func providerShare(gross, adminCut float64) (float64, error) {
	if gross < 0 || adminCut < 0 {
		return 0, utils.Internal(nil, "negative settlement amounts (gross %.2f, cut %.2f)", gross, adminCut)
	}
	return roundCents(math.Max(gross-adminCut, 0)), nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
