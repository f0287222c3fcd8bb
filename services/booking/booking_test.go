package booking

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	memoryRepo "bidmarket/database/repository/memory"
	"bidmarket/models"
	"bidmarket/services/coupon"
	"bidmarket/services/earnings"
	"bidmarket/services/payment/paymenttest"
	"bidmarket/services/settlement"
	"bidmarket/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	customer = models.Actor{ID: "c1", Role: models.RoleCustomer}
	provider = models.Actor{ID: "p1", Role: models.RoleProvider}
	admin    = models.Actor{ID: "a1", Role: models.RoleAdmin}
)

type fakeStorage struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeStorage) Store(_ context.Context, name string, _ io.Reader) (string, error) {
	return "https://files.test/" + name, nil
}

func (f *fakeStorage) Delete(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return nil
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, utils.ErrLockHeld
}

type fixture struct {
	svc     *Service
	store   *memoryRepo.Store
	gw      *paymenttest.Gateway
	storage *fakeStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memoryRepo.New()
	gw := paymenttest.New()
	files := &fakeStorage{}

	require.NoError(t, store.Users().Create(ctx, &models.User{ID: "c1", Role: models.RoleCustomer}))
	require.NoError(t, store.Users().Create(ctx, &models.User{ID: "p1", Role: models.RoleProvider, StripeConnectedAccount: "acct_p1"}))
	require.NoError(t, store.Users().Create(ctx, &models.User{ID: "p2", Role: models.RoleProvider, StripeConnectedAccount: "acct_p2"}))
	require.NoError(t, store.Catalog().CreateService(ctx, &models.Service{ID: "s1", Name: "Deep clean", Price: 200, IsActive: true}))
	require.NoError(t, store.Catalog().CreateService(ctx, &models.Service{ID: "s2", Name: "Windows", Price: 50, IsActive: true}))

	ledger := earnings.NewLedger(store.Earnings(), store.Users(), "usd", nil)
	orchestrator := settlement.New(settlement.Deps{
		Tx:       store,
		Bookings: store.Bookings(),
		Bids:     store.Bids(),
		Payments: store.Payments(),
		Intents:  store.Settlements(),
		Users:    store.Users(),
		Ledger:   ledger,
		Gateway:  gw,
	}, settlement.Config{Currency: "usd"})

	svc := New(Deps{
		Tx:         store,
		Bookings:   store.Bookings(),
		Bids:       store.Bids(),
		Catalog:    store.Catalog(),
		Users:      store.Users(),
		Coupons:    coupon.NewLedger(store.Coupons(), nil),
		Settlement: orchestrator,
		Storage:    files,
	}, Config{DefaultRevenuePercent: 20})
	return &fixture{svc: svc, store: store, gw: gw, storage: files}
}

func draft() models.BookingDraft {
	return models.BookingDraft{
		CategoryID:    "cleaning",
		LineItems:     []models.LineItem{{ServiceID: "s1", Quantity: 1}},
		PaymentMethod: models.PaymentUnspecified,
	}
}

func (f *fixture) create(t *testing.T) *models.Booking {
	t.Helper()
	res, err := f.svc.Create(context.Background(), customer, draft())
	require.NoError(t, err)
	return res.Booking
}

func (f *fixture) bid(t *testing.T, bookingID, providerID string, rate float64) *models.Bid {
	t.Helper()
	b := &models.Bid{ID: uuid.New().String(), BookingID: bookingID, ProviderID: providerID, Rate: rate}
	b.SetStatus(models.BidPending, time.Now())
	require.NoError(t, f.store.Bids().Create(context.Background(), b))
	return b
}

func (f *fixture) loadBooking(t *testing.T, id string) *models.Booking {
	t.Helper()
	b, err := f.store.Bookings().GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) bidStatus(t *testing.T, id string) models.BidStatus {
	t.Helper()
	b, err := f.store.Bids().GetByID(context.Background(), id)
	require.NoError(t, err)
	return b.Status
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestCreatePricesFromCatalog(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	assert.Equal(t, models.BookingPending, b.Status)
	assert.Equal(t, models.PaymentUnpaid, b.PaymentStatus)
	assert.Equal(t, 200.0, b.TotalAmount)
	assert.Equal(t, 0.0, b.Discount)
	assert.Equal(t, 200.0, b.FinalAmount)
	assert.Equal(t, 20.0, b.AdminRevenuePercent)
	assert.Equal(t, 200.0, b.LineItems[0].UnitCharge)
}

func TestCreateRequiresCustomer(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), provider, draft())
	require.Error(t, err)
	assert.Equal(t, utils.KindForbidden, utils.KindOf(err))
}

func TestCreateValidatesDraft(t *testing.T) {
	f := newFixture(t)
	d := draft()
	d.LineItems = nil
	_, err := f.svc.Create(context.Background(), customer, d)
	require.Error(t, err)
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))
}

func TestCreateRedeemsCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Coupons().Create(ctx, &models.Coupon{
		ID: "cp1", Code: "SAVE10", DiscountType: models.DiscountPercentage, DiscountValue: 10,
		IsActive: true, StartDate: time.Now().Add(-time.Hour), EndDate: time.Now().Add(time.Hour),
	}))

	d := draft()
	d.CouponCode = "SAVE10"
	res, err := f.svc.Create(ctx, customer, d)
	require.NoError(t, err)
	assert.Equal(t, 180.0, res.Booking.FinalAmount)
	assert.Equal(t, 20.0, res.Booking.Discount)
	assert.Equal(t, 10.0, res.Booking.AdminRevenuePercent)
	assert.Equal(t, "cp1", res.Booking.CouponID)

	c, err := f.store.Coupons().GetByCode(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)
}

func TestCreateFailureReleasesCouponAndAttachments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Coupons().Create(ctx, &models.Coupon{
		ID: "cp1", Code: "BIGORDER", DiscountType: models.DiscountFlat, DiscountValue: 5,
		MinOrderAmount: floatPtr(500), UsageLimit: intPtr(10),
		IsActive: true, StartDate: time.Now().Add(-time.Hour), EndDate: time.Now().Add(time.Hour),
	}))

	d := draft()
	d.CouponCode = "BIGORDER"
	d.Attachments = []string{"https://files.test/photo.jpg"}
	_, err := f.svc.Create(ctx, customer, d)
	require.Error(t, err)
	assert.Equal(t, "MIN_ORDER_NOT_MET", utils.CodeOf(err))

	c, err := f.store.Coupons().GetByCode(ctx, "BIGORDER")
	require.NoError(t, err)
	assert.Equal(t, 0, c.UsedCount)
	assert.Equal(t, []string{"https://files.test/photo.jpg"}, f.storage.deleted)

	list, err := f.svc.ListForCustomer(ctx, customer)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateDirectHireCash(t *testing.T) {
	f := newFixture(t)
	d := draft()
	d.ProviderID = "p1"
	d.Rate = 150
	d.PaymentMethod = models.PaymentCash

	res, err := f.svc.Create(context.Background(), customer, d)
	require.NoError(t, err)
	assert.Empty(t, res.CheckoutURL)
	b := f.loadBooking(t, res.Booking.ID)
	assert.Equal(t, models.BookingConfirmed, b.Status)
	assert.Equal(t, "p1", b.AssignedProviderID)
	assert.Equal(t, 150.0, b.FinalAmount)
	assert.Equal(t, models.BidAccepted, f.bidStatus(t, b.AcceptedBidID))
}

func TestCreateDirectHireOnlineOpensCheckout(t *testing.T) {
	f := newFixture(t)
	d := draft()
	d.ProviderID = "p1"
	d.Rate = 150
	d.PaymentMethod = models.PaymentOnline

	res, err := f.svc.Create(context.Background(), customer, d)
	require.NoError(t, err)
	assert.NotEmpty(t, res.CheckoutURL)
	b := f.loadBooking(t, res.Booking.ID)
	assert.Equal(t, models.BookingPending, b.Status)
	assert.False(t, b.HasAcceptedBid())
}

func TestCreateDirectHireNeedsPaymentMethod(t *testing.T) {
	f := newFixture(t)
	d := draft()
	d.ProviderID = "p1"
	d.Rate = 150
	_, err := f.svc.Create(context.Background(), customer, d)
	require.Error(t, err)
	assert.Equal(t, "PAYMENT_METHOD_REQUIRED", utils.CodeOf(err))
}

func TestAcceptBidCash(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	winner := f.bid(t, b.ID, "p1", 150)
	loser := f.bid(t, b.ID, "p2", 170)

	res, err := f.svc.AcceptBid(context.Background(), customer, b.ID, winner.ID, models.PaymentCash)
	require.NoError(t, err)
	assert.Empty(t, res.CheckoutURL)

	got := f.loadBooking(t, b.ID)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	assert.Equal(t, models.PaymentCash, got.PaymentMethod)
	assert.Equal(t, winner.ID, got.AcceptedBidID)
	assert.Equal(t, 150.0, got.FinalAmount)
	assert.Equal(t, models.BidAccepted, f.bidStatus(t, winner.ID))
	assert.Equal(t, models.BidRejected, f.bidStatus(t, loser.ID))
}

func TestAcceptBidOnlineDefersToCheckout(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	bid := f.bid(t, b.ID, "p1", 150)

	res, err := f.svc.AcceptBid(context.Background(), customer, b.ID, bid.ID, models.PaymentOnline)
	require.NoError(t, err)
	assert.NotEmpty(t, res.CheckoutURL)

	got := f.loadBooking(t, b.ID)
	assert.Equal(t, models.BookingPending, got.Status)
	assert.False(t, got.HasAcceptedBid())
	assert.Equal(t, models.BidPending, f.bidStatus(t, bid.ID))
}

func TestAcceptBidRejectsOtherCustomer(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	bid := f.bid(t, b.ID, "p1", 150)

	stranger := models.Actor{ID: "c2", Role: models.RoleCustomer}
	_, err := f.svc.AcceptBid(context.Background(), stranger, b.ID, bid.ID, models.PaymentCash)
	require.Error(t, err)
	assert.Equal(t, utils.KindForbidden, utils.KindOf(err))
}

func TestConcurrentAcceptOneWins(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	bids := []*models.Bid{f.bid(t, b.ID, "p1", 150), f.bid(t, b.ID, "p2", 160)}

	var wg sync.WaitGroup
	errs := make([]error, len(bids))
	for i, bid := range bids {
		wg.Add(1)
		go func(i int, bidID string) {
			defer wg.Done()
			_, errs[i] = f.svc.AcceptBid(context.Background(), customer, b.ID, bidID, models.PaymentCash)
		}(i, bid.ID)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case utils.IsKind(err, utils.KindConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	accepted := 0
	for _, bid := range bids {
		if f.bidStatus(t, bid.ID) == models.BidAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestAcceptBidWhileLocked(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	bid := f.bid(t, b.ID, "p1", 150)
	f.svc.locker = heldLocker{}

	_, err := f.svc.AcceptBid(context.Background(), customer, b.ID, bid.ID, models.PaymentCash)
	require.Error(t, err)
	assert.Equal(t, "BOOKING_BUSY", utils.CodeOf(err))
}

func TestChangeAcceptedBidCash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)
	first := f.bid(t, b.ID, "p1", 150)
	second := f.bid(t, b.ID, "p2", 140)

	_, err := f.svc.AcceptBid(ctx, customer, b.ID, first.ID, models.PaymentCash)
	require.NoError(t, err)
	_, err = f.svc.ChangeAcceptedBid(ctx, customer, b.ID, second.ID, models.PaymentCash)
	require.NoError(t, err)

	got := f.loadBooking(t, b.ID)
	assert.Equal(t, second.ID, got.AcceptedBidID)
	assert.Equal(t, "p2", got.AssignedProviderID)
	assert.Equal(t, 140.0, got.FinalAmount)
	assert.Equal(t, models.BidAccepted, f.bidStatus(t, second.ID))
	assert.Equal(t, models.BidPending, f.bidStatus(t, first.ID))
}

func TestChangePaidBookingCannotExceedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)
	first := f.bid(t, b.ID, "p1", 150)
	pricier := f.bid(t, b.ID, "p2", 180)

	_, err := f.svc.AcceptBid(ctx, customer, b.ID, first.ID, models.PaymentCash)
	require.NoError(t, err)
	paid := f.loadBooking(t, b.ID)
	paid.PaymentStatus = models.PaymentPaid
	paid.PaymentMethod = models.PaymentOnline
	require.NoError(t, f.store.Bookings().Update(ctx, paid))

	_, err = f.svc.ChangeAcceptedBid(ctx, customer, b.ID, pricier.ID, models.PaymentOnline)
	require.Error(t, err)
	assert.Equal(t, "NEW_PRICE_EXCEEDS_PAYMENT", utils.CodeOf(err))
	assert.Equal(t, first.ID, f.loadBooking(t, b.ID).AcceptedBidID)
	assert.Equal(t, 0, f.gw.CheckoutCalls)
}

func TestCustomerCancelPaidBookingFlagsRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)
	bid := f.bid(t, b.ID, "p1", 150)
	other := f.bid(t, b.ID, "p2", 170)
	_, err := f.svc.AcceptBid(ctx, customer, b.ID, bid.ID, models.PaymentCash)
	require.NoError(t, err)
	paid := f.loadBooking(t, b.ID)
	paid.PaymentStatus = models.PaymentPaid
	require.NoError(t, f.store.Bookings().Update(ctx, paid))

	got, err := f.svc.Cancel(ctx, customer, b.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, got.Status)
	assert.True(t, got.IsNeedRefund)
	assert.Equal(t, models.BidCancelled, f.bidStatus(t, bid.ID))
	assert.Equal(t, models.BidRejected, f.bidStatus(t, other.ID))

	_, err = f.svc.Cancel(ctx, customer, b.ID, "again")
	require.Error(t, err)
	assert.Equal(t, utils.KindInvalidTransition, utils.KindOf(err))
}

func TestProviderCancelReopensBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)
	bid := f.bid(t, b.ID, "p1", 150)
	other := f.bid(t, b.ID, "p2", 170)
	_, err := f.svc.AcceptBid(ctx, customer, b.ID, bid.ID, models.PaymentCash)
	require.NoError(t, err)

	got, err := f.svc.Cancel(ctx, provider, b.ID, "sick")
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, got.Status)
	assert.False(t, got.HasAcceptedBid())
	assert.Equal(t, models.BidPending, f.bidStatus(t, bid.ID))
	assert.Equal(t, models.BidPending, f.bidStatus(t, other.ID))

	_, err = f.svc.AcceptBid(ctx, customer, b.ID, other.ID, models.PaymentCash)
	require.NoError(t, err)
}

func TestCancelCompletedBookingIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)
	bid := f.bid(t, b.ID, "p1", 150)
	_, err := f.svc.AcceptBid(ctx, customer, b.ID, bid.ID, models.PaymentCash)
	require.NoError(t, err)
	done := f.loadBooking(t, b.ID)
	done.PaymentStatus = models.PaymentPaid
	done.SetStatus(models.BookingCompleted, time.Now())
	require.NoError(t, f.store.Bookings().Update(ctx, done))

	for _, actor := range []models.Actor{customer, admin, provider} {
		_, err := f.svc.Cancel(ctx, actor, b.ID, "too late")
		require.Error(t, err, actor.Role)
		assert.Equal(t, utils.KindInvalidTransition, utils.KindOf(err), actor.Role)
	}

	got := f.loadBooking(t, b.ID)
	assert.Equal(t, models.BookingCompleted, got.Status)
	assert.False(t, got.IsNeedRefund)
	assert.Equal(t, "p1", got.AssignedProviderID)
	assert.Equal(t, models.BidAccepted, f.bidStatus(t, bid.ID))
}

func TestCancelBookingAwaitingPayoutIsRejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *models.Booking)
	}{
		{"payout pending", func(b *models.Booking) { b.AwaitingTransfer = true }},
		{"payout sent", func(b *models.Booking) { b.TransferID = "tr_1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			b := f.create(t)
			bid := f.bid(t, b.ID, "p1", 150)
			_, err := f.svc.AcceptBid(ctx, customer, b.ID, bid.ID, models.PaymentCash)
			require.NoError(t, err)
			working := f.loadBooking(t, b.ID)
			working.PaymentMethod = models.PaymentOnline
			working.PaymentStatus = models.PaymentPaid
			working.SetStatus(models.BookingWorkStarted, time.Now())
			tt.mutate(working)
			require.NoError(t, f.store.Bookings().Update(ctx, working))

			_, err = f.svc.Cancel(ctx, customer, b.ID, "changed my mind")
			require.Error(t, err)
			assert.Equal(t, utils.KindInvalidTransition, utils.KindOf(err))

			got := f.loadBooking(t, b.ID)
			assert.Equal(t, models.BookingWorkStarted, got.Status)
			assert.False(t, got.IsNeedRefund)
			assert.Equal(t, models.BidAccepted, f.bidStatus(t, bid.ID))
		})
	}
}

func TestCancelByUninvolvedProviderIsForbidden(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	_, err := f.svc.Cancel(context.Background(), models.Actor{ID: "p9", Role: models.RoleProvider}, b.ID, "")
	require.Error(t, err)
	assert.Equal(t, utils.KindForbidden, utils.KindOf(err))
}

func TestVerifyCompletionCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)
	bid := f.bid(t, b.ID, "p1", 150)
	_, err := f.svc.AcceptBid(ctx, customer, b.ID, bid.ID, models.PaymentCash)
	require.NoError(t, err)

	code, hash, err := utils.NewCompletionCode()
	require.NoError(t, err)
	started := f.loadBooking(t, b.ID)
	started.Status = models.BookingWorkStarted
	started.CompletionCodeHash = hash
	require.NoError(t, f.store.Bookings().Update(ctx, started))

	_, err = f.svc.VerifyCompletionCode(ctx, provider, b.ID, "000000x")
	require.Error(t, err)
	assert.Equal(t, "INVALID_COMPLETION_CODE", utils.CodeOf(err))

	_, err = f.svc.VerifyCompletionCode(ctx, customer, b.ID, code)
	assert.Equal(t, utils.KindForbidden, utils.KindOf(err))

	got, err := f.svc.VerifyCompletionCode(ctx, provider, b.ID, code)
	require.NoError(t, err)
	assert.True(t, got.CompletionVerified)
}

func TestRefundIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	_, err := f.svc.Refund(context.Background(), customer, b.ID)
	assert.Equal(t, utils.KindForbidden, utils.KindOf(err))

	_, err = f.svc.Refund(context.Background(), admin, b.ID)
	assert.Equal(t, utils.KindInvalidTransition, utils.KindOf(err))
}

func TestGetVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t)
	f.bid(t, b.ID, "p1", 150)

	_, err := f.svc.Get(ctx, customer, b.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, provider, b.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, models.Actor{ID: "p2", Role: models.RoleProvider}, b.ID)
	assert.Equal(t, utils.KindForbidden, utils.KindOf(err))
}
