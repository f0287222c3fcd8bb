package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	bidRepo "bidmarket/database/repository/bid"
	paymentRepo "bidmarket/database/repository/payment"
	settlementRepo "bidmarket/database/repository/settlement"
	userRepo "bidmarket/database/repository/user"
	"bidmarket/models"
	"bidmarket/services/payment"
	"bidmarket/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Amounts is the priced outcome that the customer is asked to pay.
type Amounts struct {
	Total          float64
	Discount       float64
	Final          float64
	RevenuePercent float64
}

type CheckoutInput struct {
	Booking     *models.Booking
	Bid         *models.Bid
	Amounts     Amounts
	IsBidChange bool
}

// OpenCheckout starts the online acceptance of a bid. Nothing about the booking
// changes here; the checkout webhook applies the acceptance once paid.
func (o *Orchestrator) OpenCheckout(ctx context.Context, in CheckoutInput) (string, error) {
	b, bid := in.Booking, in.Bid
	if in.Amounts.Final <= 0 {
		return "", utils.Validation("booking %s has nothing to pay online", b.ID).WithCode("NOTHING_TO_PAY")
	}

	existing, err := o.intents.GetOpenByBooking(ctx, b.ID)
	switch {
	case err == nil && existing.BidID == bid.ID && existing.Amount == in.Amounts.Final && existing.CheckoutURL != "":
		return existing.CheckoutURL, nil
	case err != nil && !errors.Is(err, settlementRepo.ErrNotFound):
		return "", utils.Internal(err, "failed to look up open checkout")
	}

	var stripeCustomer string
	if customer, err := o.users.GetByID(ctx, b.CustomerID); err == nil {
		stripeCustomer = customer.StripeCustomerID
	} else if !errors.Is(err, userRepo.ErrNotFound) {
		return "", utils.Internal(err, "failed to load customer %s", b.CustomerID)
	}

	receivers := []string{b.CustomerID, bid.ProviderID}
	meta := map[string]string{
		metaBookingID:      b.ID,
		metaBidID:          bid.ID,
		metaCustomerID:     b.CustomerID,
		metaProviderID:     bid.ProviderID,
		metaReceivers:      strings.Join(receivers, ","),
		metaIsBidChange:    strconv.FormatBool(in.IsBidChange),
		metaTotalAmount:    formatAmount(in.Amounts.Total),
		metaDiscount:       formatAmount(in.Amounts.Discount),
		metaFinalAmount:    formatAmount(in.Amounts.Final),
		metaRevenuePercent: formatAmount(in.Amounts.RevenuePercent),
	}

	sess, err := o.gateway.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		Amount:         in.Amounts.Final,
		Currency:       o.cfg.Currency,
		Description:    fmt.Sprintf("Booking %s", b.ID),
		CustomerID:     stripeCustomer,
		SuccessURL:     o.cfg.SuccessURL,
		CancelURL:      o.cfg.CancelURL,
		Metadata:       meta,
		IdempotencyKey: fmt.Sprintf("checkout:%s:%s:%d", b.ID, bid.ID, payment.ToMinorUnits(in.Amounts.Final)),
	})
	if err != nil {
		return "", utils.Upstream(err, "could not open checkout for booking %s", b.ID).WithCode("CHECKOUT_FAILED")
	}

	now := o.now()
	intent := &models.SettlementIntent{
		ID:                uuid.New().String(),
		BookingID:         b.ID,
		BidID:             bid.ID,
		CustomerID:        b.CustomerID,
		Amount:            in.Amounts.Final,
		Currency:          o.cfg.Currency,
		CheckoutSessionID: sess.ID,
		CheckoutURL:       sess.URL,
		IsBidChange:       in.IsBidChange,
		Receivers:         receivers,
		Status:            models.SettlementOpen,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := o.intents.Create(ctx, intent); err != nil {
		// The webhook still carries everything needed; only reconciliation loses sight of it.
		o.logger.Warn("settlement intent not persisted",
			zap.String("bookingId", b.ID), zap.String("sessionId", sess.ID), zap.Error(err))
	}

	o.logger.Info("checkout opened",
		zap.String("bookingId", b.ID), zap.String("bidId", bid.ID),
		zap.String("sessionId", sess.ID), zap.Bool("isBidChange", in.IsBidChange))
	return sess.URL, nil
}

// HandleWebhook verifies and applies one gateway event. A nil return means the
// event may be acknowledged, including events that can never be processed.
// Any error other than a VALIDATION one is transient and should be retried.
func (o *Orchestrator) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	evt, err := o.gateway.ParseWebhook(payload, signature)
	if errors.Is(err, payment.ErrInvalidSignature) {
		return utils.Validation("webhook signature rejected").WithCode("INVALID_SIGNATURE")
	}
	if err != nil {
		o.logger.Warn("dropping unreadable webhook payload", zap.Error(err))
		return nil
	}

	log := o.logger.With(zap.String("eventId", evt.ID), zap.String("eventType", evt.Type))
	switch {
	case evt.Type == payment.EventCheckoutCompleted && evt.Checkout != nil:
		err = o.FinalizeCheckout(ctx, evt.Checkout)
	case evt.Type == payment.EventTransferCreated && evt.Transfer != nil:
		err = o.markTransferred(ctx, evt.Transfer)
	default:
		log.Debug("ignoring webhook event")
		return nil
	}
	if errors.Is(err, errSkip) {
		log.Warn("acknowledging unprocessable webhook event", zap.Error(err))
		return nil
	}
	if err != nil {
		log.Error("webhook event failed", zap.Error(err))
	}
	return err
}

type checkoutOutcome struct {
	payment     *models.Payment
	booking     *models.Booking
	bid         *models.Bid
	rejected    []models.Bid
	displacedBy string
	compensate  string
}

// FinalizeCheckout applies a paid checkout session: one PAID payment, the bid
// accepted and the booking CONFIRMED, all in one transaction. Replays of the same
// payment intent are no-ops. A payment that arrives for a booking that can no
// longer take it is refunded.
func (o *Orchestrator) FinalizeCheckout(ctx context.Context, sess *payment.CheckoutSession) error {
	if !sess.Paid() {
		o.logger.Debug("checkout not paid yet", zap.String("sessionId", sess.ID), zap.String("status", sess.Status))
		return nil
	}
	meta := sess.Metadata
	bookingID, bidID := meta[metaBookingID], meta[metaBidID]
	if bookingID == "" || bidID == "" || sess.PaymentIntentID == "" {
		return fmt.Errorf("%w: checkout %s lacks booking metadata", errSkip, sess.ID)
	}

	existing, err := o.payments.GetByIntentID(ctx, sess.PaymentIntentID)
	switch {
	case err == nil:
		return o.replayed(ctx, existing)
	case !errors.Is(err, paymentRepo.ErrNotFound):
		return utils.Internal(err, "failed to look up payment intent %s", sess.PaymentIntentID)
	}

	isBidChange, _ := strconv.ParseBool(meta[metaIsBidChange])
	var out checkoutOutcome
	err = o.tx.WithTransaction(ctx, func(ctx context.Context) error {
		out = checkoutOutcome{}
		booking, err := o.loadBooking(ctx, bookingID)
		if utils.IsKind(err, utils.KindNotFound) {
			return fmt.Errorf("%w: %v", errSkip, err)
		}
		if err != nil {
			return err
		}
		bid, err := o.bids.GetByID(ctx, bidID)
		if err != nil && !errors.Is(err, bidRepo.ErrNotFound) {
			return utils.Internal(err, "failed to load bid %s", bidID)
		}
		if err != nil || bid.BookingID != booking.ID {
			return fmt.Errorf("%w: bid %s does not belong to booking %s", errSkip, bidID, booking.ID)
		}

		now := o.now()
		p := &models.Payment{
			ID:              uuid.New().String(),
			CustomerID:      booking.CustomerID,
			BookingID:       booking.ID,
			Method:          models.PaymentOnline,
			Status:          models.PaymentPaid,
			TransactionID:   sess.ID,
			PaymentIntentID: sess.PaymentIntentID,
			Amount:          sess.AmountTotal,
			Currency:        sess.Currency,
			GatewayPayload:  string(sess.Raw),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := o.payments.Create(ctx, p); err != nil {
			if errors.Is(err, paymentRepo.ErrDuplicateIntent) {
				return errDuplicate
			}
			return utils.Internal(err, "failed to record payment")
		}
		out.payment = p

		if reason := acceptanceBlocker(booking, bid, isBidChange); reason != "" {
			out.compensate = reason
			return o.closeIntent(ctx, sess.ID, sess.PaymentIntentID, models.SettlementFailed)
		}
		if err := o.closeIntent(ctx, sess.ID, sess.PaymentIntentID, models.SettlementCompleted); err != nil {
			return err
		}

		var displaced string
		if booking.HasAcceptedBid() && booking.AcceptedBidID != bid.ID {
			displaced = booking.AcceptedBidID
			out.displacedBy = booking.AssignedProviderID
		}
		out.rejected, err = o.ConfirmBid(ctx, booking, bid, displaced)
		if err != nil {
			return err
		}
		a := amountsFromMetadata(meta, sess.AmountTotal, booking)
		booking.ApplyQuote(a.Total, a.Discount, a.Final, a.RevenuePercent)
		booking.PaymentID = p.ID
		booking.PaymentMethod = models.PaymentOnline
		booking.PaymentStatus = models.PaymentPaid
		if booking.Status == models.BookingPending {
			booking.SetStatus(models.BookingConfirmed, now)
		}
		if err := o.bookings.Update(ctx, booking); err != nil {
			return utils.Internal(err, "failed to confirm booking %s", booking.ID)
		}
		out.booking, out.bid = booking, bid
		return nil
	})
	if errors.Is(err, errDuplicate) {
		return nil
	}
	if err != nil {
		return err
	}

	if out.compensate != "" {
		o.logger.Warn("payment arrived for a booking that cannot take it",
			zap.String("bookingId", bookingID), zap.String("bidId", bidID), zap.String("reason", out.compensate))
		return o.compensate(ctx, out.payment, out.compensate)
	}

	o.logger.Info("online payment confirmed",
		zap.String("bookingId", out.booking.ID), zap.String("bidId", out.bid.ID),
		zap.String("paymentIntent", sess.PaymentIntentID), zap.Float64("amount", sess.AmountTotal))
	o.notify(ctx, models.Notification{
		ReceiverID: out.booking.CustomerID,
		Title:      "Payment received",
		Body:       fmt.Sprintf("We received %.2f %s for your booking.", out.payment.Amount, strings.ToUpper(out.payment.Currency)),
		Type:       models.NotifyPaymentReceived,
		Reference:  models.Reference{Kind: models.RefBooking, ID: out.booking.ID},
	})
	o.NotifyAcceptance(ctx, out.booking, out.bid, out.displacedBy, out.rejected)
	o.IssueInvoice(ctx, out.booking, out.payment)
	return nil
}

// acceptanceBlocker explains why a paid checkout can no longer be applied, or
// returns "" when it can.
func acceptanceBlocker(b *models.Booking, bid *models.Bid, isBidChange bool) string {
	switch {
	case b.Status.IsTerminal():
		return "booking is " + strings.ToLower(string(b.Status))
	case b.Status.Rank() > models.BookingConfirmed.Rank():
		return "work on the booking already started"
	case b.PaymentStatus != models.PaymentUnpaid:
		return "booking is already paid"
	case b.HasAcceptedBid() && b.AcceptedBidID != bid.ID && !isBidChange:
		return "another bid was accepted"
	}
	switch bid.Status {
	case models.BidPending:
		return ""
	case models.BidAccepted:
		if b.AcceptedBidID == bid.ID {
			return ""
		}
	case models.BidRejected:
		if isBidChange {
			return ""
		}
	}
	return "bid is " + strings.ToLower(string(bid.Status))
}

// replayed handles a checkout whose payment intent was already recorded. If that
// payment was never attached to its booking, its refund is retried.
func (o *Orchestrator) replayed(ctx context.Context, p *models.Payment) error {
	if p.Status != models.PaymentPaid {
		return nil
	}
	b, err := o.bookings.GetByID(ctx, p.BookingID)
	if err != nil || b.PaymentID == p.ID {
		return nil
	}
	return o.compensate(ctx, p, "payment was not applied to its booking")
}

// compensate refunds a payment that could not be applied.
func (o *Orchestrator) compensate(ctx context.Context, p *models.Payment, reason string) error {
	refund, err := o.gateway.CreateRefund(ctx, payment.RefundRequest{
		PaymentIntentID: p.PaymentIntentID,
		Amount:          p.Amount,
		Metadata:        map[string]string{metaBookingID: p.BookingID, "reason": reason},
		IdempotencyKey:  "refund:" + p.PaymentIntentID,
	})
	if err != nil {
		return utils.Upstream(err, "could not refund unapplied payment %s", p.ID).WithCode("REFUND_FAILED")
	}
	p.Status = models.PaymentRefunded
	p.RefundID = refund.ID
	p.UpdatedAt = o.now()
	if err := o.payments.Update(ctx, p); err != nil {
		return utils.Internal(err, "failed to mark payment %s refunded", p.ID)
	}
	o.notify(ctx, models.Notification{
		ReceiverID: p.CustomerID,
		Title:      "Payment refunded",
		Body:       fmt.Sprintf("Your payment of %.2f was refunded: %s.", p.Amount, reason),
		Type:       models.NotifyRefundIssued,
		Reference:  models.Reference{Kind: models.RefBooking, ID: p.BookingID},
	})
	return nil
}

func (o *Orchestrator) closeIntent(ctx context.Context, sessionID, intentID string, status models.SettlementStatus) error {
	intent, err := o.intents.GetByCheckoutSession(ctx, sessionID)
	if errors.Is(err, settlementRepo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return utils.Internal(err, "failed to load settlement intent")
	}
	if intent.Status != models.SettlementOpen {
		return nil
	}
	intent.Status = status
	intent.PaymentIntentID = intentID
	intent.UpdatedAt = o.now()
	if err := o.intents.Update(ctx, intent); err != nil {
		return utils.Internal(err, "failed to close settlement intent")
	}
	return nil
}

func amountsFromMetadata(meta map[string]string, paid float64, b *models.Booking) Amounts {
	a := Amounts{
		Total:          b.TotalAmount,
		Discount:       b.Discount,
		Final:          paid,
		RevenuePercent: b.AdminRevenuePercent,
	}
	if v, err := strconv.ParseFloat(meta[metaTotalAmount], 64); err == nil {
		a.Total = v
	}
	if v, err := strconv.ParseFloat(meta[metaDiscount], 64); err == nil {
		a.Discount = v
	}
	if v, err := strconv.ParseFloat(meta[metaRevenuePercent], 64); err == nil {
		a.RevenuePercent = v
	}
	return a
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
