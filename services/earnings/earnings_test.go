package earnings

import (
	"context"
	"testing"

	memoryRepo "bidmarket/database/repository/memory"
	"bidmarket/models"
	"bidmarket/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *memoryRepo.Store) {
	t.Helper()
	store := memoryRepo.New()
	require.NoError(t, store.Users().Create(context.Background(), &models.User{ID: "p1", Role: models.RoleProvider}))
	return NewLedger(store.Earnings(), store.Users(), "usd", nil), store
}

func TestCreditAndTransferKeepBalance(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	ledger, err := l.Credit(ctx, "p1", 100, 20)
	require.NoError(t, err)
	assert.Equal(t, 80.0, ledger.TotalEarnings)
	assert.Equal(t, 80.0, ledger.PendingTransfer)
	assert.True(t, ledger.Balanced())

	ledger, err = l.RecordTransfer(ctx, "p1", 80)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ledger.PendingTransfer)
	assert.Equal(t, 80.0, ledger.AmountTransferred)
	assert.True(t, ledger.Balanced())
}

func TestRecordTransferCannotGoNegative(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Credit(ctx, "p1", 50, 10)
	require.NoError(t, err)

	_, err = l.RecordTransfer(ctx, "p1", 41)
	require.Error(t, err)
	assert.Equal(t, utils.KindInternal, utils.KindOf(err))
	assert.Equal(t, "LEDGER_NEGATIVE", utils.CodeOf(err))

	ledger, err := l.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 40.0, ledger.PendingTransfer)
}

func TestAdminDueMirrorsProfile(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddAdminDue(ctx, "p1", 20)
	require.NoError(t, err)

	u, err := store.Users().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, u.AdminDueAmount)
}

func TestNettingDueAbsorbsPayout(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddAdminDue(ctx, "p1", 30)
	require.NoError(t, err)
	_, err = l.Credit(ctx, "p1", 25, 5)
	require.NoError(t, err)

	n, err := l.NetAdminDue(ctx, "p1", 20)
	require.NoError(t, err)
	assert.Equal(t, Netting{Payout: 20, DueApplied: 20, Transferable: 0}, n)

	ledger, err := l.ApplyNetting(ctx, "p1", n)
	require.NoError(t, err)
	assert.Equal(t, 10.0, ledger.AdminDue)
	assert.Equal(t, 0.0, ledger.PendingTransfer)
	assert.True(t, ledger.Balanced())
}

func TestNettingClearsDueAndTransfersRemainder(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddAdminDue(ctx, "p1", 15)
	require.NoError(t, err)
	_, err = l.Credit(ctx, "p1", 100, 20)
	require.NoError(t, err)

	n, err := l.NetAdminDue(ctx, "p1", 80)
	require.NoError(t, err)
	assert.Equal(t, 15.0, n.DueApplied)
	assert.Equal(t, 65.0, n.Transferable)

	ledger, err := l.ApplyNetting(ctx, "p1", n)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ledger.AdminDue)
	assert.Equal(t, 80.0, ledger.AmountTransferred)
}

func TestReserveNettingThenSettle(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddAdminDue(ctx, "p1", 15)
	require.NoError(t, err)
	_, err = l.Credit(ctx, "p1", 100, 20)
	require.NoError(t, err)

	n, err := l.ReserveNetting(ctx, "p1", 80)
	require.NoError(t, err)
	assert.Equal(t, Netting{Payout: 80, DueApplied: 15, Transferable: 65}, n)

	ledger, err := l.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, ledger.AdminDue)
	assert.Equal(t, 0.0, ledger.PendingTransfer)
	assert.Equal(t, 65.0, ledger.ReservedTransfer)
	assert.Equal(t, 15.0, ledger.AmountTransferred)
	assert.True(t, ledger.Balanced())

	u, err := store.Users().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, u.AdminDueAmount)

	// Nothing pending is left to net a second time.
	_, err = l.ReserveNetting(ctx, "p1", 80)
	assert.Equal(t, "LEDGER_NEGATIVE", utils.CodeOf(err))

	ledger, err = l.SettleReserved(ctx, "p1", 65)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ledger.ReservedTransfer)
	assert.Equal(t, 80.0, ledger.AmountTransferred)
	assert.True(t, ledger.Balanced())

	_, err = l.SettleReserved(ctx, "p1", 1)
	assert.Equal(t, "LEDGER_NEGATIVE", utils.CodeOf(err))
}

func TestGetUnknownProviderIsEmpty(t *testing.T) {
	l, _ := newTestLedger(t)
	ledger, err := l.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0.0, ledger.TotalEarnings)
	assert.Equal(t, "usd", ledger.Currency)
}
