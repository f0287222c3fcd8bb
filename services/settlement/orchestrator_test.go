package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	bidRepo "bidmarket/database/repository/bid"
	memoryRepo "bidmarket/database/repository/memory"
	"bidmarket/models"
	"bidmarket/services/earnings"
	"bidmarket/services/notification"
	"bidmarket/services/payment"
	"bidmarket/services/payment/paymenttest"
	"bidmarket/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	o      *Orchestrator
	store  *memoryRepo.Store
	gw     *paymenttest.Gateway
	ledger *earnings.Ledger
	clock  time.Time

	mu   sync.Mutex
	sent []models.Notification
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store: memoryRepo.New(),
		gw:    paymenttest.New(),
		clock: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	users := f.store.Users()
	require.NoError(t, users.Create(ctx, &models.User{ID: "c1", Role: models.RoleCustomer, Name: "Cara"}))
	require.NoError(t, users.Create(ctx, &models.User{ID: "p1", Role: models.RoleProvider, Name: "Pat", StripeConnectedAccount: "acct_p1"}))
	require.NoError(t, users.Create(ctx, &models.User{ID: "p2", Role: models.RoleProvider, Name: "Sam", StripeConnectedAccount: "acct_p2"}))

	f.ledger = earnings.NewLedger(f.store.Earnings(), users, "usd", nil)
	f.o = New(Deps{
		Tx:       f.store,
		Bookings: f.store.Bookings(),
		Bids:     f.store.Bids(),
		Payments: f.store.Payments(),
		Intents:  f.store.Settlements(),
		Users:    users,
		Ledger:   f.ledger,
		Gateway:  f.gw,
		Notifier: notification.NotifierFunc(f.record),
	}, Config{Currency: "usd", SuccessURL: "https://app.test/ok", CancelURL: "https://app.test/cancel"})
	f.o.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) record(_ context.Context, n models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fixture) sentOfType(typ string) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.sent {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func (f *fixture) seedBooking(t *testing.T, mutate func(b *models.Booking)) *models.Booking {
	t.Helper()
	b := &models.Booking{
		ID:            uuid.New().String(),
		CustomerID:    "c1",
		CategoryID:    "cleaning",
		LineItems:     []models.LineItem{{ServiceID: "s1", Quantity: 1, UnitCharge: 200}},
		Status:        models.BookingPending,
		PaymentMethod: models.PaymentUnspecified,
		PaymentStatus: models.PaymentUnpaid,
		CreatedAt:     f.clock,
	}
	b.ApplyQuote(200, 0, 200, 10)
	if mutate != nil {
		mutate(b)
	}
	require.NoError(t, f.store.Bookings().Create(context.Background(), b))
	return b
}

func (f *fixture) seedBid(t *testing.T, bookingID, providerID string, rate float64, status models.BidStatus) *models.Bid {
	t.Helper()
	bid := &models.Bid{ID: uuid.New().String(), BookingID: bookingID, ProviderID: providerID, Rate: rate}
	bid.SetStatus(status, f.clock)
	require.NoError(t, f.store.Bids().Create(context.Background(), bid))
	return bid
}

func (f *fixture) booking(t *testing.T, id string) *models.Booking {
	t.Helper()
	b, err := f.store.Bookings().GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) bid(t *testing.T, id string) *models.Bid {
	t.Helper()
	b, err := f.store.Bids().GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

// startedOnline seeds a paid online booking whose work is verified complete.
func (f *fixture) startedOnline(t *testing.T, final, percent float64) (*models.Booking, *models.Bid) {
	t.Helper()
	b := f.seedBooking(t, func(b *models.Booking) {
		b.ApplyQuote(final, 0, final, percent)
		b.Status = models.BookingWorkStarted
		b.PaymentMethod = models.PaymentOnline
		b.PaymentStatus = models.PaymentPaid
		b.CompletionVerified = true
	})
	bid := f.seedBid(t, b.ID, "p1", final, models.BidCompleted)
	b.AssignBid(bid.ID, bid.ProviderID)
	require.NoError(t, f.store.Bookings().Update(context.Background(), b))
	return b, bid
}

func (f *fixture) completeOnline(t *testing.T, b *models.Booking, bid *models.Bid) {
	t.Helper()
	require.NoError(t, f.store.WithTransaction(context.Background(), func(ctx context.Context) error {
		return f.o.CompleteOnline(ctx, b, bid)
	}))
}

func TestSettleCashChargesAdminDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, func(b *models.Booking) {
		b.Status = models.BookingWorkStarted
		b.PaymentMethod = models.PaymentCash
		b.CompletionVerified = true
	})
	bid := f.seedBid(t, b.ID, "p1", 200, models.BidCompleted)
	b.AssignBid(bid.ID, "p1")

	err := f.store.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := f.o.SettleCash(ctx, b, bid)
		return err
	})
	require.NoError(t, err)

	got := f.booking(t, b.ID)
	assert.Equal(t, models.BookingCompleted, got.Status)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.NotEmpty(t, got.PaymentID)

	ledger, err := f.ledger.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, ledger.AdminDue)
	assert.Equal(t, 180.0, ledger.TotalEarnings)
	assert.Equal(t, 180.0, ledger.AmountTransferred)
	assert.True(t, ledger.Balanced())

	provider, err := f.store.Users().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, provider.AdminDueAmount)
}

func TestSettleCashNeedsVerifiedCode(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, func(b *models.Booking) {
		b.Status = models.BookingWorkStarted
		b.PaymentMethod = models.PaymentCash
	})
	bid := f.seedBid(t, b.ID, "p1", 200, models.BidWorkStarted)

	_, err := f.o.SettleCash(context.Background(), b, bid)
	require.Error(t, err)
	assert.Equal(t, utils.KindInvalidTransition, utils.KindOf(err))
	assert.Equal(t, 0, f.store.PaymentCount())
}

func TestOpenCheckoutLeavesBookingUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, nil)
	bid := f.seedBid(t, b.ID, "p1", 200, models.BidPending)
	in := CheckoutInput{Booking: b, Bid: bid, Amounts: Amounts{Total: 200, Final: 200, RevenuePercent: 10}}

	url, err := f.o.OpenCheckout(ctx, in)
	require.NoError(t, err)
	assert.Contains(t, url, "https://checkout.test/")

	again, err := f.o.OpenCheckout(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, url, again)
	assert.Equal(t, 1, f.gw.CheckoutCalls)

	got := f.booking(t, b.ID)
	assert.Equal(t, models.BookingPending, got.Status)
	assert.Equal(t, models.PaymentUnpaid, got.PaymentStatus)
	assert.Empty(t, got.AcceptedBidID)
	assert.Equal(t, models.BidPending, f.bid(t, bid.ID).Status)
}

func TestOpenCheckoutGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.gw.CheckoutErr = assert.AnError
	b := f.seedBooking(t, nil)
	bid := f.seedBid(t, b.ID, "p1", 200, models.BidPending)

	_, err := f.o.OpenCheckout(context.Background(), CheckoutInput{Booking: b, Bid: bid, Amounts: Amounts{Final: 200}})
	require.Error(t, err)
	assert.Equal(t, utils.KindUpstreamFailure, utils.KindOf(err))
	_, err = f.store.Settlements().GetOpenByBooking(context.Background(), b.ID)
	assert.Error(t, err)
}

func TestCheckoutWebhookReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, nil)
	winner := f.seedBid(t, b.ID, "p1", 200, models.BidPending)
	loser := f.seedBid(t, b.ID, "p2", 210, models.BidPending)

	_, err := f.o.OpenCheckout(ctx, CheckoutInput{Booking: b, Bid: winner, Amounts: Amounts{Total: 200, Final: 200, RevenuePercent: 10}})
	require.NoError(t, err)
	intent, err := f.store.Settlements().GetOpenByBooking(ctx, b.ID)
	require.NoError(t, err)

	f.gw.Pay(intent.CheckoutSessionID)
	payload := f.gw.CheckoutCompleted(intent.CheckoutSessionID)
	require.NoError(t, f.o.HandleWebhook(ctx, payload, paymenttest.ValidSignature))
	require.NoError(t, f.o.HandleWebhook(ctx, payload, paymenttest.ValidSignature))

	assert.Equal(t, 1, f.store.PaymentCount())
	got := f.booking(t, b.ID)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, models.PaymentOnline, got.PaymentMethod)
	assert.Equal(t, winner.ID, got.AcceptedBidID)
	assert.Equal(t, "p1", got.AssignedProviderID)
	assert.Equal(t, 10.0, got.AdminRevenuePercent)
	assert.Equal(t, models.BidAccepted, f.bid(t, winner.ID).Status)
	assert.Equal(t, models.BidRejected, f.bid(t, loser.ID).Status)

	assert.Len(t, f.sentOfType(models.NotifyPaymentReceived), 1)
	assert.Len(t, f.sentOfType(models.NotifyBidAccepted), 1)
	assert.Len(t, f.sentOfType(models.NotifyBidRejected), 1)

	closed, err := f.store.Settlements().GetByCheckoutSession(ctx, intent.CheckoutSessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementCompleted, closed.Status)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	err := f.o.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=forged")
	require.Error(t, err)
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))
}

func TestWebhookAcknowledgesUnknownBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, nil)
	bid := f.seedBid(t, b.ID, "p1", 200, models.BidPending)
	_, err := f.o.OpenCheckout(ctx, CheckoutInput{Booking: b, Bid: bid, Amounts: Amounts{Final: 200}})
	require.NoError(t, err)
	intent, err := f.store.Settlements().GetOpenByBooking(ctx, b.ID)
	require.NoError(t, err)

	forged := *f.gw.Pay(intent.CheckoutSessionID)
	forged.Metadata = map[string]string{metaBookingID: "missing", metaBidID: bid.ID}

	err = f.o.FinalizeCheckout(ctx, &forged)
	assert.ErrorIs(t, err, errSkip)
	assert.Equal(t, 0, f.store.PaymentCount())
}

func TestPaymentForCancelledBookingIsRefunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, nil)
	bid := f.seedBid(t, b.ID, "p1", 200, models.BidPending)
	_, err := f.o.OpenCheckout(ctx, CheckoutInput{Booking: b, Bid: bid, Amounts: Amounts{Final: 200}})
	require.NoError(t, err)
	intent, err := f.store.Settlements().GetOpenByBooking(ctx, b.ID)
	require.NoError(t, err)

	b = f.booking(t, b.ID)
	b.SetStatus(models.BookingCancelled, f.clock)
	require.NoError(t, f.store.Bookings().Update(ctx, b))

	sess := f.gw.Pay(intent.CheckoutSessionID)
	require.NoError(t, f.o.HandleWebhook(ctx, f.gw.CheckoutCompleted(sess.ID), paymenttest.ValidSignature))

	require.Len(t, f.gw.RefundCalls, 1)
	p, err := f.store.Payments().GetByIntentID(ctx, sess.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, p.Status)
	got := f.booking(t, b.ID)
	assert.Equal(t, models.BookingCancelled, got.Status)
	assert.Equal(t, models.PaymentUnpaid, got.PaymentStatus)
	assert.Len(t, f.sentOfType(models.NotifyRefundIssued), 1)

	closed, err := f.store.Settlements().GetByCheckoutSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementFailed, closed.Status)
	assert.Equal(t, sess.PaymentIntentID, closed.PaymentIntentID)
}

// flakyBids fails every bid read with err.
type flakyBids struct {
	bidRepo.BidRepository
	err error
}

func (r flakyBids) GetByID(context.Context, string) (*models.Bid, error) { return nil, r.err }

func TestCheckoutWebhookRetriesWhenBidReadFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, nil)
	bid := f.seedBid(t, b.ID, "p1", 200, models.BidPending)
	_, err := f.o.OpenCheckout(ctx, CheckoutInput{Booking: b, Bid: bid, Amounts: Amounts{Total: 200, Final: 200, RevenuePercent: 10}})
	require.NoError(t, err)
	intent, err := f.store.Settlements().GetOpenByBooking(ctx, b.ID)
	require.NoError(t, err)
	sess := f.gw.Pay(intent.CheckoutSessionID)
	payload := f.gw.CheckoutCompleted(sess.ID)

	f.o.bids = flakyBids{BidRepository: f.store.Bids(), err: errors.New("connection reset")}
	err = f.o.HandleWebhook(ctx, payload, paymenttest.ValidSignature)
	require.Error(t, err)
	assert.Equal(t, utils.KindInternal, utils.KindOf(err))
	assert.Zero(t, f.store.PaymentCount())
	assert.Equal(t, models.PaymentUnpaid, f.booking(t, b.ID).PaymentStatus)

	f.o.bids = f.store.Bids()
	require.NoError(t, f.o.HandleWebhook(ctx, payload, paymenttest.ValidSignature))
	got := f.booking(t, b.ID)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, bid.ID, got.AcceptedBidID)
}

func TestCheckoutWebhookSkipsUnknownBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, nil)
	bid := f.seedBid(t, b.ID, "p1", 200, models.BidPending)
	_, err := f.o.OpenCheckout(ctx, CheckoutInput{Booking: b, Bid: bid, Amounts: Amounts{Total: 200, Final: 200, RevenuePercent: 10}})
	require.NoError(t, err)
	intent, err := f.store.Settlements().GetOpenByBooking(ctx, b.ID)
	require.NoError(t, err)
	sess := f.gw.Pay(intent.CheckoutSessionID)

	f.o.bids = flakyBids{BidRepository: f.store.Bids(), err: bidRepo.ErrNotFound}
	require.NoError(t, f.o.HandleWebhook(ctx, f.gw.CheckoutCompleted(sess.ID), paymenttest.ValidSignature))
	assert.Zero(t, f.store.PaymentCount())
}

func TestTransferNetsAdminDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.AddAdminDue(ctx, "p1", 30)
	require.NoError(t, err)

	b, bid := f.startedOnline(t, 100, 20)
	f.completeOnline(t, b, bid)

	ledger, err := f.ledger.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 80.0, ledger.PendingTransfer)
	assert.True(t, f.booking(t, b.ID).AwaitingTransfer)

	require.NoError(t, f.o.TransferToProvider(ctx, b.ID))
	require.Len(t, f.gw.TransferCalls, 1)
	assert.Equal(t, 50.0, f.gw.TransferCalls[0].Amount)
	assert.Equal(t, "acct_p1", f.gw.TransferCalls[0].Destination)
	assert.Equal(t, "transfer:"+b.ID, f.gw.TransferCalls[0].IdempotencyKey)

	ledger, err = f.ledger.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, ledger.AdminDue)
	assert.Equal(t, 0.0, ledger.PendingTransfer)
	assert.Equal(t, 0.0, ledger.ReservedTransfer)
	assert.Equal(t, 80.0, ledger.AmountTransferred)
	assert.True(t, ledger.Balanced())

	got := f.booking(t, b.ID)
	assert.False(t, got.AwaitingTransfer)
	require.NotNil(t, got.Payout)
	assert.Equal(t, models.PayoutPlan{Payout: 80, DueApplied: 30, Transferable: 50, ReservedAt: f.clock}, *got.Payout)
	assert.NotEmpty(t, got.TransferID)
	assert.Equal(t, models.BookingWorkStarted, got.Status)

	require.NoError(t, f.o.TransferToProvider(ctx, b.ID))
	assert.Len(t, f.gw.TransferCalls, 1)

	payload := f.gw.TransferCreated(f.gw.LastTransfer("transfer:" + b.ID))
	require.NoError(t, f.o.HandleWebhook(ctx, payload, paymenttest.ValidSignature))
	require.NoError(t, f.o.HandleWebhook(ctx, payload, paymenttest.ValidSignature))

	got = f.booking(t, b.ID)
	assert.True(t, got.IsPaymentTransferred)
	assert.Equal(t, models.BookingCompleted, got.Status)
	assert.Len(t, f.sentOfType(models.NotifyPayoutTransferred), 1)
}

func TestTransferFullyOffsetByAdminDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.AddAdminDue(ctx, "p1", 100)
	require.NoError(t, err)

	b, bid := f.startedOnline(t, 100, 20)
	f.completeOnline(t, b, bid)
	require.NoError(t, f.o.TransferToProvider(ctx, b.ID))

	assert.Empty(t, f.gw.TransferCalls)
	ledger, err := f.ledger.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, ledger.AdminDue)
	assert.Equal(t, 80.0, ledger.AmountTransferred)

	got := f.booking(t, b.ID)
	assert.True(t, got.IsPaymentTransferred)
	assert.Equal(t, models.BookingCompleted, got.Status)
}

func TestTransferWaitsForPlatformBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.Balance = 10

	b, bid := f.startedOnline(t, 100, 20)
	f.completeOnline(t, b, bid)

	err := f.o.TransferToProvider(ctx, b.ID)
	require.Error(t, err)
	assert.Equal(t, utils.KindUpstreamFailure, utils.KindOf(err))
	assert.Equal(t, "INSUFFICIENT_PLATFORM_BALANCE", utils.CodeOf(err))

	ledger, err := f.ledger.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, ledger.PendingTransfer)
	assert.Equal(t, 80.0, ledger.ReservedTransfer)
	assert.True(t, ledger.Balanced())
	got := f.booking(t, b.ID)
	assert.True(t, got.AwaitingTransfer)
	require.NotNil(t, got.Payout)
	assert.Equal(t, 80.0, got.Payout.Transferable)

	swept, err := f.o.SweepTransfers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	// A due booked while the payout waits belongs to the next payout.
	_, err = f.ledger.AddAdminDue(ctx, "p1", 50)
	require.NoError(t, err)

	f.gw.Balance = 1000
	swept, err = f.o.SweepTransfers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.False(t, f.booking(t, b.ID).AwaitingTransfer)

	require.Len(t, f.gw.TransferCalls, 1)
	assert.Equal(t, 80.0, f.gw.TransferCalls[0].Amount)
	ledger, err = f.ledger.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, ledger.AdminDue)
	assert.Equal(t, 0.0, ledger.ReservedTransfer)
	assert.Equal(t, 80.0, ledger.AmountTransferred)
}

// interleavingGateway runs hook once from inside the first transfer, before
// that transfer returns.
type interleavingGateway struct {
	*paymenttest.Gateway
	hook func()
}

func (g *interleavingGateway) CreateTransfer(ctx context.Context, req payment.TransferRequest) (*payment.Transfer, error) {
	if hook := g.hook; hook != nil {
		g.hook = nil
		hook()
	}
	return g.Gateway.CreateTransfer(ctx, req)
}

func TestOverlappingPayoutsNetAdminDueOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.AddAdminDue(ctx, "p1", 30)
	require.NoError(t, err)

	first, firstBid := f.startedOnline(t, 100, 20)
	f.completeOnline(t, first, firstBid)
	second, secondBid := f.startedOnline(t, 100, 20)
	f.completeOnline(t, second, secondBid)

	var secondErr error
	f.o.gateway = &interleavingGateway{
		Gateway: f.gw,
		hook:    func() { secondErr = f.o.TransferToProvider(ctx, second.ID) },
	}

	require.NoError(t, f.o.TransferToProvider(ctx, first.ID))
	require.NoError(t, secondErr)

	amounts := map[string]float64{}
	for _, call := range f.gw.TransferCalls {
		amounts[call.IdempotencyKey] = call.Amount
	}
	assert.Equal(t, map[string]float64{
		"transfer:" + first.ID:  50,
		"transfer:" + second.ID: 80,
	}, amounts)

	ledger, err := f.ledger.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, ledger.AdminDue)
	assert.Equal(t, 0.0, ledger.PendingTransfer)
	assert.Equal(t, 0.0, ledger.ReservedTransfer)
	assert.Equal(t, 160.0, ledger.AmountTransferred)
	assert.True(t, ledger.Balanced())

	for _, id := range []string{first.ID, second.ID} {
		got := f.booking(t, id)
		assert.False(t, got.AwaitingTransfer, id)
		assert.NotEmpty(t, got.TransferID, id)
	}
	assert.Equal(t, 30.0, f.booking(t, first.ID).Payout.DueApplied)
	assert.Equal(t, 0.0, f.booking(t, second.ID).Payout.DueApplied)
}

func TestPayoutRetryAfterLostResponseResendsSameAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.AddAdminDue(ctx, "p1", 30)
	require.NoError(t, err)
	b, bid := f.startedOnline(t, 100, 20)
	f.completeOnline(t, b, bid)

	// The transfer leaves but the caller never hears back.
	plan, _, err := f.o.reservePayout(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.o.sendTransfer(ctx, plan, *plan.Payout)
	require.NoError(t, err)

	_, err = f.ledger.AddAdminDue(ctx, "p1", 10)
	require.NoError(t, err)
	require.NoError(t, f.o.TransferToProvider(ctx, b.ID))

	require.Len(t, f.gw.TransferCalls, 1)
	assert.Equal(t, 50.0, f.gw.TransferCalls[0].Amount)
	ledger, err := f.ledger.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, ledger.AdminDue)
	assert.Equal(t, 80.0, ledger.AmountTransferred)
	assert.True(t, ledger.Balanced())
	assert.False(t, f.booking(t, b.ID).AwaitingTransfer)
}

func TestTransferWebhookBeforeLedgerWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, bid := f.startedOnline(t, 100, 20)
	f.completeOnline(t, b, bid)

	// The transfer.created event lands before the payout is booked.
	require.NoError(t, f.o.markTransferred(ctx, &payment.Transfer{ID: "tr_early", Amount: 80, Metadata: map[string]string{metaBookingID: b.ID}}))
	got := f.booking(t, b.ID)
	assert.True(t, got.IsPaymentTransferred)
	assert.True(t, got.AwaitingTransfer)

	require.NoError(t, f.o.TransferToProvider(ctx, b.ID))
	ledger, err := f.ledger.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, ledger.PendingTransfer)
	assert.Equal(t, 80.0, ledger.AmountTransferred)
	assert.False(t, f.booking(t, b.ID).AwaitingTransfer)
}

func TestReconcileFinalizesPaidCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := f.seedBooking(t, nil)
	paidBid := f.seedBid(t, paid.ID, "p1", 200, models.BidPending)
	_, err := f.o.OpenCheckout(ctx, CheckoutInput{Booking: paid, Bid: paidBid, Amounts: Amounts{Total: 200, Final: 200, RevenuePercent: 10}})
	require.NoError(t, err)

	lapsed := f.seedBooking(t, nil)
	lapsedBid := f.seedBid(t, lapsed.ID, "p2", 150, models.BidPending)
	_, err = f.o.OpenCheckout(ctx, CheckoutInput{Booking: lapsed, Bid: lapsedBid, Amounts: Amounts{Total: 150, Final: 150, RevenuePercent: 10}})
	require.NoError(t, err)

	paidIntent, err := f.store.Settlements().GetOpenByBooking(ctx, paid.ID)
	require.NoError(t, err)
	lapsedIntent, err := f.store.Settlements().GetOpenByBooking(ctx, lapsed.ID)
	require.NoError(t, err)
	f.gw.Pay(paidIntent.CheckoutSessionID)
	f.gw.Expire(lapsedIntent.CheckoutSessionID)

	f.clock = f.clock.Add(30 * time.Minute)
	report, err := f.o.Reconcile(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 2, Completed: 1, Expired: 1}, report)

	got := f.booking(t, paid.ID)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, paidBid.ID, got.AcceptedBidID)
	assert.Equal(t, models.PaymentUnpaid, f.booking(t, lapsed.ID).PaymentStatus)

	report, err = f.o.Reconcile(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
}

func TestRefundPaidCancelledBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := &models.Payment{
		ID:              uuid.New().String(),
		CustomerID:      "c1",
		Method:          models.PaymentOnline,
		Status:          models.PaymentPaid,
		PaymentIntentID: "pi_refund",
		Amount:          200,
		Currency:        "usd",
	}
	b := f.seedBooking(t, func(b *models.Booking) {
		b.Status = models.BookingCancelled
		b.PaymentMethod = models.PaymentOnline
		b.PaymentStatus = models.PaymentPaid
		b.PaymentID = p.ID
		b.IsNeedRefund = true
	})
	p.BookingID = b.ID
	require.NoError(t, f.store.Payments().Create(ctx, p))

	got, err := f.o.Refund(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, got.PaymentStatus)
	assert.False(t, got.IsNeedRefund)
	require.Len(t, f.gw.RefundCalls, 1)
	assert.Equal(t, 200.0, f.gw.RefundCalls[0].Amount)

	stored, err := f.store.Payments().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, stored.Status)
	assert.NotEmpty(t, stored.RefundID)

	_, err = f.o.Refund(ctx, b.ID)
	require.Error(t, err)
	assert.Equal(t, utils.KindInvalidTransition, utils.KindOf(err))
}
