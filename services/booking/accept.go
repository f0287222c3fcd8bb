package booking

import (
	"context"

	"bidmarket/models"
	"bidmarket/services/pricing"
	"bidmarket/services/settlement"
	"bidmarket/utils"

	"go.uber.org/zap"
)

// AcceptBid chooses a pending bid. Cash acceptance is applied at once; online
// acceptance returns a checkout URL and is applied by the payment webhook.
func (s *Service) AcceptBid(ctx context.Context, actor models.Actor, bookingID, bidID string, method models.PaymentMethod) (*Result, error) {
	return s.accept(ctx, actor, bookingID, bidID, method, false)
}

// ChangeAcceptedBid replaces the accepted bid before work starts. The old bid
// goes back to PENDING.
func (s *Service) ChangeAcceptedBid(ctx context.Context, actor models.Actor, bookingID, bidID string, method models.PaymentMethod) (*Result, error) {
	return s.accept(ctx, actor, bookingID, bidID, method, true)
}

type acceptance struct {
	booking           *models.Booking
	bid               *models.Bid
	quote             *pricing.Quote
	rejected          []models.Bid
	displacedProvider string
	confirmed         bool
}

func (s *Service) accept(ctx context.Context, actor models.Actor, bookingID, bidID string, method models.PaymentMethod, change bool) (*Result, error) {
	if !actor.IsCustomer() {
		return nil, utils.Forbidden("only the customer can choose a bid")
	}
	if method != models.PaymentCash && method != models.PaymentOnline {
		return nil, utils.Validation("payment method must be CASH or ONLINE").WithCode("PAYMENT_METHOD_REQUIRED")
	}
	release, err := s.lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	var a acceptance
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		a = acceptance{}
		b, err := s.loadOwnedBooking(ctx, actor, bookingID)
		if err != nil {
			return err
		}
		if b.Status != models.BookingPending && b.Status != models.BookingConfirmed {
			return utils.InvalidTransition("booking %s is %s", bookingID, b.Status)
		}

		var displaced string
		if change {
			if !b.HasAcceptedBid() {
				return utils.InvalidTransition("booking %s has no accepted bid to change", bookingID).WithCode("NO_ACCEPTED_BID")
			}
			if b.AcceptedBidID == bidID {
				return utils.Validation("bid %s is already accepted", bidID)
			}
			old, err := s.loadBidOf(ctx, b, b.AcceptedBidID)
			if err != nil {
				return err
			}
			if old.Status.Rank() > models.BidAccepted.Rank() {
				return utils.InvalidTransition("the accepted bid is already %s", old.Status)
			}
			displaced = old.ID
			a.displacedProvider = b.AssignedProviderID
		} else if b.HasAcceptedBid() {
			return utils.Conflict("booking %s already has an accepted bid", bookingID).WithCode("BID_ALREADY_ACCEPTED")
		}

		bid, err := s.loadBidOf(ctx, b, bidID)
		if err != nil {
			return err
		}
		if bid.Status != models.BidPending && !(change && bid.Status == models.BidRejected) {
			return utils.InvalidTransition("bid %s is %s", bidID, bid.Status)
		}
		q, err := s.quoteFor(ctx, b, bid)
		if err != nil {
			return err
		}
		a.booking, a.bid, a.quote = b, bid, q

		switch {
		case b.PaymentStatus == models.PaymentPaid:
			// The payment carries over; the new price may not exceed it.
			if q.FinalAmount > b.FinalAmount+0.005 {
				return utils.Validation("new price %.2f exceeds the %.2f already paid", q.FinalAmount, b.FinalAmount).
					WithCode("NEW_PRICE_EXCEEDS_PAYMENT")
			}
		case method == models.PaymentOnline:
			return nil
		default:
			b.PaymentMethod = models.PaymentCash
		}

		a.rejected, err = s.settlement.ConfirmBid(ctx, b, bid, displaced)
		if err != nil {
			return err
		}
		b.ApplyQuote(q.TotalAmount, q.Discount, q.FinalAmount, q.RevenuePercent)
		if b.Status == models.BookingPending {
			b.SetStatus(models.BookingConfirmed, s.now())
		}
		if err := s.bookings.Update(ctx, b); err != nil {
			return utils.Internal(err, "failed to update booking %s", bookingID)
		}
		a.confirmed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Booking: a.booking}
	if a.confirmed {
		s.logger.Info("bid accepted",
			zap.String("bookingId", bookingID), zap.String("bidId", bidID),
			zap.String("paymentMethod", string(a.booking.PaymentMethod)), zap.Bool("change", change))
		s.settlement.NotifyAcceptance(ctx, a.booking, a.bid, a.displacedProvider, a.rejected)
		return res, nil
	}

	url, err := s.settlement.OpenCheckout(ctx, settlement.CheckoutInput{
		Booking:     a.booking,
		Bid:         a.bid,
		Amounts:     amountsOf(a.quote),
		IsBidChange: change,
	})
	if err != nil {
		return res, err
	}
	res.CheckoutURL = url
	return res, nil
}
