package booking

import (
	"context"

	"bidmarket/models"
	"bidmarket/utils"

	"go.uber.org/zap"
)

// Cancel ends or reopens a booking depending on who asks. The customer (or an
// admin) cancels it for good; a paid booking is then flagged for refund. The
// assigned provider backs out instead: the booking returns to PENDING and its
// bids compete again.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, bookingID, reason string) (*models.Booking, error) {
	release, err := s.lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		booking   *models.Booking
		receivers []string
		reopened  bool
	)
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		receivers, reopened = nil, false
		b, err := s.loadBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status.IsTerminal() {
			return utils.InvalidTransition("booking %s is already %s", bookingID, b.Status)
		}
		if b.AwaitingTransfer || b.TransferID != "" {
			return utils.InvalidTransition("booking %s is completed and awaiting payout", bookingID)
		}
		now := s.now()

		switch {
		case actor.IsAdmin(), actor.IsCustomer() && b.CustomerID == actor.ID:
			if b.IsNeedRefund {
				return utils.Conflict("a refund is already pending for booking %s", bookingID).WithCode("REFUND_PENDING")
			}
			bids, err := s.bids.ListByBooking(ctx, b.ID)
			if err != nil {
				return utils.Internal(err, "failed to load bids")
			}
			for i := range bids {
				bid := &bids[i]
				switch {
				case bid.ID == b.AcceptedBidID:
					bid.CancelReason = reason
					bid.SetStatus(models.BidCancelled, now)
					if err := s.bids.Update(ctx, bid); err != nil {
						return utils.Internal(err, "failed to cancel bid %s", bid.ID)
					}
					receivers = append(receivers, bid.ProviderID)
				case bid.Status == models.BidPending:
					bid.SetStatus(models.BidRejected, now)
					if err := s.bids.Update(ctx, bid); err != nil {
						return utils.Internal(err, "failed to reject bid %s", bid.ID)
					}
					receivers = append(receivers, bid.ProviderID)
				}
			}
			if b.PaymentStatus == models.PaymentPaid {
				b.IsNeedRefund = true
			}
			b.SetStatus(models.BookingCancelled, now)

		case actor.IsProvider() && b.AssignedProviderID == actor.ID:
			reopen := []models.BidStatus{models.BidAccepted, models.BidOnTheWay, models.BidWorkStarted, models.BidRejected}
			if _, err := s.bids.SetStatusForBooking(ctx, b.ID, "", reopen, models.BidPending, now); err != nil {
				return utils.Internal(err, "failed to reopen bids")
			}
			b.ClearAssignment()
			b.CompletionCodeHash = ""
			b.CompletionVerified = false
			b.SetStatus(models.BookingPending, now)
			receivers = []string{b.CustomerID}
			reopened = true

		default:
			return utils.Forbidden("only the customer or the assigned provider can cancel booking %s", bookingID)
		}

		b.CancelReason = reason
		b.CancelledBy = actor.ID
		if err := s.bookings.Update(ctx, b); err != nil {
			return utils.Internal(err, "failed to update booking %s", bookingID)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking cancelled",
		zap.String("bookingId", bookingID), zap.String("by", actor.ID),
		zap.Bool("reopened", reopened), zap.Bool("needsRefund", booking.IsNeedRefund))

	n := models.Notification{
		Title:     "Booking cancelled",
		Body:      "The customer cancelled the booking.",
		Type:      models.NotifyBookingCancelled,
		Reference: models.Reference{Kind: models.RefBooking, ID: bookingID},
		Data:      map[string]string{"reason": reason},
	}
	if reopened {
		n.Title = "Provider cancelled"
		n.Body = "Your provider backed out. Your booking is open for bids again."
		n.Type = models.NotifyBookingReopened
	}
	for _, r := range receivers {
		n.ReceiverID = r
		s.notify(ctx, n)
	}
	return booking, nil
}
