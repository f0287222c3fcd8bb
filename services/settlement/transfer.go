package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	bookingRepo "bidmarket/database/repository/booking"
	userRepo "bidmarket/database/repository/user"
	"bidmarket/models"
	"bidmarket/services/payment"
	"bidmarket/services/pricing"
	"bidmarket/utils"

	"go.uber.org/zap"
)

const sweepBatch = 100

// CompleteOnline books the provider's share of a paid online booking as pending
// transfer. It runs inside the transaction that completes the bid; the booking
// itself completes when the payout lands.
func (o *Orchestrator) CompleteOnline(ctx context.Context, booking *models.Booking, bid *models.Bid) error {
	if !booking.CompletionVerified {
		return utils.InvalidTransition("completion code for booking %s has not been verified", booking.ID).
			WithCode("COMPLETION_NOT_VERIFIED")
	}
	if booking.PaymentStatus != models.PaymentPaid {
		return utils.InvalidTransition("online payment for booking %s has not been received", booking.ID).
			WithCode("PAYMENT_PENDING")
	}
	if booking.AwaitingTransfer || booking.IsPaymentTransferred {
		return nil
	}

	adminCut := pricing.AdminRevenueAmount(booking.FinalAmount, booking.AdminRevenuePercent)
	if _, err := o.ledger.Credit(ctx, bid.ProviderID, booking.FinalAmount, adminCut); err != nil {
		return err
	}
	booking.AwaitingTransfer = true
	booking.UpdatedAt = o.now()
	if err := o.bookings.Update(ctx, booking); err != nil {
		return utils.Internal(err, "failed to flag booking %s for payout", booking.ID)
	}
	return nil
}

// ScheduleTransfer queues the payout of a booking. A failure is only logged: the
// periodic sweep picks up every booking still awaiting its transfer.
func (o *Orchestrator) ScheduleTransfer(ctx context.Context, bookingID string) {
	if o.transfers == nil {
		return
	}
	if err := o.transfers.EnqueueTransfer(ctx, bookingID); err != nil {
		o.logger.Warn("payout not queued, leaving it to the sweep", zap.String("bookingId", bookingID), zap.Error(err))
	}
}

// TransferToProvider pays the provider of a completed online booking. The admin
// due is netted against the payout first and only the remainder is sent. The
// netting is reserved on the ledger and persisted on the booking before the
// gateway is called; every retry sends that same amount under the booking's
// idempotency key.
func (o *Orchestrator) TransferToProvider(ctx context.Context, bookingID string) error {
	booking, offset, err := o.reservePayout(ctx, bookingID)
	if err != nil || booking == nil {
		return err
	}
	providerID := booking.AssignedProviderID
	plan := *booking.Payout
	log := o.logger.With(zap.String("bookingId", bookingID), zap.String("providerId", providerID))

	if offset {
		log.Info("payout offset against admin due", zap.Float64("payout", plan.Payout))
		o.notify(ctx, models.Notification{
			ReceiverID: providerID,
			Title:      "Payout offset",
			Body:       fmt.Sprintf("Your payout of %.2f was applied to the platform fees you owe.", plan.Payout),
			Type:       models.NotifyPayoutTransferred,
			Reference:  models.Reference{Kind: models.RefBooking, ID: bookingID},
		})
		return nil
	}

	transfer, err := o.sendTransfer(ctx, booking, plan)
	if err != nil {
		log.Warn("payout not sent", zap.Float64("transferable", plan.Transferable), zap.Error(err))
		return err
	}

	recorded, err := o.recordPayout(ctx, bookingID, transfer)
	if err != nil || !recorded {
		return err
	}
	log.Info("payout settled",
		zap.Float64("payout", plan.Payout),
		zap.Float64("adminDueApplied", plan.DueApplied),
		zap.Float64("transferred", plan.Transferable))
	return nil
}

// reservePayout returns the booking with its payout plan, reserving the netting
// on first use. A nil booking means there is nothing left to pay. offset reports
// that the admin due absorbed the whole payout and the booking is now settled.
func (o *Orchestrator) reservePayout(ctx context.Context, bookingID string) (*models.Booking, bool, error) {
	var (
		booking *models.Booking
		offset  bool
	)
	err := o.tx.WithTransaction(ctx, func(ctx context.Context) error {
		booking, offset = nil, false
		b, err := o.loadBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.AwaitingTransfer {
			return nil
		}
		if b.PaymentStatus != models.PaymentPaid || b.AssignedProviderID == "" {
			return utils.InvalidTransition("booking %s is not ready for payout", bookingID)
		}
		if b.Payout != nil {
			booking = b
			return nil
		}

		payout := pricing.ProviderPayout(b.FinalAmount, b.AdminRevenuePercent)
		n, err := o.ledger.ReserveNetting(ctx, b.AssignedProviderID, payout)
		if err != nil {
			return err
		}
		now := o.now()
		b.Payout = &models.PayoutPlan{
			Payout:       n.Payout,
			DueApplied:   n.DueApplied,
			Transferable: n.Transferable,
			ReservedAt:   now,
		}
		if n.Transferable == 0 {
			b.AwaitingTransfer = false
			b.IsPaymentTransferred = true
			b.SetStatus(models.BookingCompleted, now)
			offset = true
		}
		b.UpdatedAt = now
		if err := o.bookings.Update(ctx, b); err != nil {
			return utils.Internal(err, "failed to reserve payout of booking %s", bookingID)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return booking, offset, nil
}

// recordPayout books the reserved amount as transferred. It reports false when
// another run already recorded the payout.
func (o *Orchestrator) recordPayout(ctx context.Context, bookingID string, t *payment.Transfer) (bool, error) {
	var recorded bool
	err := o.tx.WithTransaction(ctx, func(ctx context.Context) error {
		recorded = false
		b, err := o.loadBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.AwaitingTransfer {
			return nil
		}
		if b.Payout == nil {
			return utils.Internal(nil, "payout of booking %s was never reserved", bookingID)
		}
		if _, err := o.ledger.SettleReserved(ctx, b.AssignedProviderID, b.Payout.Transferable); err != nil {
			return err
		}
		b.AwaitingTransfer = false
		if b.TransferID == "" {
			b.TransferID = t.ID
		}
		b.UpdatedAt = o.now()
		if err := o.bookings.Update(ctx, b); err != nil {
			return utils.Internal(err, "failed to record payout of booking %s", bookingID)
		}
		recorded = true
		return nil
	})
	return recorded, err
}

func (o *Orchestrator) sendTransfer(ctx context.Context, booking *models.Booking, plan models.PayoutPlan) (*payment.Transfer, error) {
	provider, err := o.users.GetByID(ctx, booking.AssignedProviderID)
	if errors.Is(err, userRepo.ErrNotFound) || (err == nil && provider.StripeConnectedAccount == "") {
		return nil, utils.Conflict("provider %s has no payout account", booking.AssignedProviderID).
			WithCode("PAYOUT_ACCOUNT_MISSING")
	}
	if err != nil {
		return nil, utils.Internal(err, "failed to load provider %s", booking.AssignedProviderID)
	}

	// Once the transfer exists the checks below could only fail spuriously.
	if !booking.IsPaymentTransferred {
		enabled, err := o.gateway.PayoutsEnabled(ctx, provider.StripeConnectedAccount)
		if err != nil {
			return nil, utils.Upstream(err, "could not check payout account")
		}
		if !enabled {
			return nil, utils.Upstream(nil, "payouts are disabled on the provider account").WithCode("PAYOUTS_DISABLED")
		}
		balance, err := o.gateway.AvailableBalance(ctx, o.cfg.Currency)
		if err != nil {
			return nil, utils.Upstream(err, "could not read platform balance")
		}
		if balance < plan.Transferable {
			return nil, utils.Upstream(nil, "platform balance %.2f cannot cover payout %.2f", balance, plan.Transferable).
				WithCode("INSUFFICIENT_PLATFORM_BALANCE")
		}
	}

	transfer, err := o.gateway.CreateTransfer(ctx, payment.TransferRequest{
		Amount:      plan.Transferable,
		Currency:    o.cfg.Currency,
		Destination: provider.StripeConnectedAccount,
		Metadata: map[string]string{
			metaBookingID:  booking.ID,
			metaProviderID: provider.ID,
		},
		IdempotencyKey: "transfer:" + booking.ID,
	})
	if err != nil {
		return nil, utils.Upstream(err, "transfer for booking %s failed", booking.ID).WithCode("TRANSFER_FAILED")
	}
	return transfer, nil
}

// markTransferred applies a transfer.created event: the booking's payout landed.
func (o *Orchestrator) markTransferred(ctx context.Context, t *payment.Transfer) error {
	bookingID := t.Metadata[metaBookingID]
	if bookingID == "" {
		return fmt.Errorf("%w: transfer %s carries no booking", errSkip, t.ID)
	}

	var booking *models.Booking
	err := o.tx.WithTransaction(ctx, func(ctx context.Context) error {
		booking = nil
		b, err := o.bookings.GetByID(ctx, bookingID)
		if errors.Is(err, bookingRepo.ErrNotFound) {
			return fmt.Errorf("%w: booking %s of transfer %s not found", errSkip, bookingID, t.ID)
		}
		if err != nil {
			return utils.Internal(err, "failed to load booking %s", bookingID)
		}
		if b.IsPaymentTransferred {
			return nil
		}

		now := o.now()
		if b.PaymentID != "" {
			p, err := o.payments.GetByID(ctx, b.PaymentID)
			if err != nil {
				return utils.Internal(err, "failed to load payment of booking %s", bookingID)
			}
			if p.Status.CanTransitionTo(models.PaymentPaid) {
				p.Status = models.PaymentPaid
				p.UpdatedAt = now
				if err := o.payments.Update(ctx, p); err != nil {
					return utils.Internal(err, "failed to update payment %s", p.ID)
				}
			}
		}
		b.IsPaymentTransferred = true
		if b.TransferID == "" {
			b.TransferID = t.ID
		}
		b.SetStatus(models.BookingCompleted, now)
		if err := o.bookings.Update(ctx, b); err != nil {
			return utils.Internal(err, "failed to complete booking %s", bookingID)
		}
		booking = b
		return nil
	})
	if err != nil || booking == nil {
		return err
	}

	o.logger.Info("payout landed", zap.String("bookingId", bookingID), zap.String("transferId", t.ID))
	o.notify(ctx, models.Notification{
		ReceiverID: booking.AssignedProviderID,
		Title:      "Payout sent",
		Body:       fmt.Sprintf("%.2f %s is on its way to your account.", t.Amount, strings.ToUpper(o.cfg.Currency)),
		Type:       models.NotifyPayoutTransferred,
		Reference:  models.Reference{Kind: models.RefBooking, ID: bookingID},
		Data:       map[string]string{"transferId": t.ID},
	})
	return nil
}

// SweepTransfers retries the payout of every booking still awaiting it. It runs
// on the worker, so transfers are sent inline rather than queued again.
func (o *Orchestrator) SweepTransfers(ctx context.Context) (int, error) {
	pending, err := o.bookings.ListAwaitingTransfer(ctx, sweepBatch)
	if err != nil {
		return 0, utils.Internal(err, "failed to list bookings awaiting payout")
	}
	done := 0
	for _, b := range pending {
		if err := o.TransferToProvider(ctx, b.ID); err != nil {
			o.logger.Warn("payout retry failed", zap.String("bookingId", b.ID), zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}
