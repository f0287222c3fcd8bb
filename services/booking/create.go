package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	bidRepo "bidmarket/database/repository/bid"
	"bidmarket/models"
	"bidmarket/services/pricing"
	"bidmarket/services/settlement"
	"bidmarket/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Create prices and stores a new booking. A draft naming a provider is a direct
// hire: the provider's bid is created with it and accepted right away for cash,
// or through checkout for online payment.
func (s *Service) Create(ctx context.Context, actor models.Actor, draft models.BookingDraft) (*Result, error) {
	if !actor.IsCustomer() {
		return nil, utils.Forbidden("only customers can create bookings")
	}
	if err := utils.ValidateStruct(draft); err != nil {
		return nil, err
	}
	direct := draft.ProviderID != ""
	if direct && draft.PaymentMethod == models.PaymentUnspecified {
		return nil, utils.Validation("a direct hire needs a payment method").WithCode("PAYMENT_METHOD_REQUIRED")
	}
	if direct && draft.ProviderID == actor.ID {
		return nil, utils.Validation("customers cannot hire themselves")
	}

	var (
		booking *models.Booking
		bid     *models.Bid
	)
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		booking, bid = nil, nil
		now := s.now()
		ids := serviceIDs(draft.LineItems)
		services, err := s.catalog.GetServicesByIDs(ctx, ids)
		if err != nil {
			return utils.Internal(err, "failed to load services")
		}

		in := pricing.Input{
			LineItems:      draft.LineItems,
			Catalog:        services,
			RevenuePercent: s.cfg.DefaultRevenuePercent,
			Now:            now,
		}
		if direct {
			provider, err := s.loadProvider(ctx, draft.ProviderID)
			if err != nil {
				return err
			}
			in.RevenuePercent = s.revenuePercent(provider)
			in.BidRate = &draft.Rate
			if in.Offers, err = s.catalog.GetOffers(ctx, provider.ID, ids); err != nil {
				return utils.Internal(err, "failed to load offers")
			}
		}

		var couponID string
		if code := strings.TrimSpace(draft.CouponCode); code != "" {
			c, err := s.coupons.Reserve(ctx, code, actor.ID)
			if err != nil {
				return err
			}
			in.Coupon, couponID = c, c.ID
		}

		quote, err := pricing.Compute(in)
		if err != nil {
			return err
		}

		b := &models.Booking{
			ID:            uuid.New().String(),
			CustomerID:    actor.ID,
			CategoryID:    draft.CategoryID,
			LineItems:     quote.LineItems,
			CouponID:      couponID,
			PaymentMethod: draft.PaymentMethod,
			PaymentStatus: models.PaymentUnpaid,
			Attachments:   draft.Attachments,
			CreatedAt:     now,
		}
		b.ApplyQuote(quote.TotalAmount, quote.Discount, quote.FinalAmount, quote.RevenuePercent)
		b.SetStatus(models.BookingPending, now)
		if err := s.bookings.Create(ctx, b); err != nil {
			return utils.Internal(err, "failed to store booking")
		}
		booking = b
		if !direct {
			return nil
		}

		bd := &models.Bid{
			ID:         uuid.New().String(),
			ProviderID: draft.ProviderID,
			BookingID:  b.ID,
			Rate:       draft.Rate,
			CreatedAt:  now,
		}
		bd.SetStatus(models.BidPending, now)
		if err := s.bids.Create(ctx, bd); err != nil {
			if errors.Is(err, bidRepo.ErrDuplicate) {
				return utils.Conflict("provider already bid on booking %s", b.ID).WithCode("DUPLICATE_BID")
			}
			return utils.Internal(err, "failed to store direct hire bid")
		}
		bid = bd
		if draft.PaymentMethod != models.PaymentCash {
			return nil
		}
		if _, err := s.settlement.ConfirmBid(ctx, b, bd, ""); err != nil {
			return err
		}
		b.SetStatus(models.BookingConfirmed, now)
		if err := s.bookings.Update(ctx, b); err != nil {
			return utils.Internal(err, "failed to confirm booking %s", b.ID)
		}
		return nil
	})
	if err != nil {
		s.discardAttachments(ctx, draft.Attachments)
		return nil, err
	}

	s.logger.Info("booking created",
		zap.String("bookingId", booking.ID),
		zap.String("customerId", actor.ID),
		zap.Bool("directHire", direct),
		zap.Float64("finalAmount", booking.FinalAmount))

	res := &Result{Booking: booking}
	if !direct {
		return res, nil
	}
	if booking.HasAcceptedBid() {
		s.settlement.NotifyAcceptance(ctx, booking, bid, "", nil)
		return res, nil
	}

	s.notify(ctx, models.Notification{
		ReceiverID: bid.ProviderID,
		Title:      "New direct booking",
		Body:       fmt.Sprintf("A customer wants to hire you at %.2f. Waiting for payment.", bid.Rate),
		Type:       models.NotifyNewBid,
		Reference:  models.Reference{Kind: models.RefBooking, ID: booking.ID},
	})
	url, err := s.settlement.OpenCheckout(ctx, settlement.CheckoutInput{
		Booking: booking,
		Bid:     bid,
		Amounts: amountsOfBooking(booking),
	})
	if err != nil {
		return res, err
	}
	res.CheckoutURL = url
	return res, nil
}
