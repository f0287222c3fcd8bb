package settlement

import (
	"context"
	"errors"
	"fmt"

	paymentRepo "bidmarket/database/repository/payment"
	"bidmarket/models"
	"bidmarket/services/payment"
	"bidmarket/utils"

	"go.uber.org/zap"
)

// Refund returns the online payment of a booking flagged isNeedRefund.
func (o *Orchestrator) Refund(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := o.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsNeedRefund {
		return nil, utils.InvalidTransition("booking %s has no refund pending", bookingID)
	}
	if !booking.PaymentStatus.CanTransitionTo(models.PaymentRefunded) {
		return nil, utils.InvalidTransition("booking %s is %s and cannot be refunded", bookingID, booking.PaymentStatus)
	}
	p, err := o.payments.GetByID(ctx, booking.PaymentID)
	if errors.Is(err, paymentRepo.ErrNotFound) {
		return nil, utils.Internal(err, "paid booking %s has no payment record", bookingID)
	}
	if err != nil {
		return nil, utils.Internal(err, "failed to load payment of booking %s", bookingID)
	}
	if p.Method != models.PaymentOnline || p.PaymentIntentID == "" {
		return nil, utils.Validation("cash payments are refunded outside the platform").WithCode("NOT_REFUNDABLE")
	}

	refund, err := o.gateway.CreateRefund(ctx, payment.RefundRequest{
		PaymentIntentID: p.PaymentIntentID,
		Amount:          p.Amount,
		Metadata:        map[string]string{metaBookingID: bookingID},
		IdempotencyKey:  "refund:" + p.PaymentIntentID,
	})
	if err != nil {
		return nil, utils.Upstream(err, "refund of booking %s failed", bookingID).WithCode("REFUND_FAILED")
	}

	err = o.tx.WithTransaction(ctx, func(ctx context.Context) error {
		fresh, err := o.loadBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		booking = fresh
		if !fresh.IsNeedRefund {
			return nil
		}
		now := o.now()
		fresh.IsNeedRefund = false
		fresh.PaymentStatus = models.PaymentRefunded
		fresh.UpdatedAt = now
		if err := o.bookings.Update(ctx, fresh); err != nil {
			return utils.Internal(err, "failed to mark booking %s refunded", bookingID)
		}
		fp, err := o.payments.GetByID(ctx, p.ID)
		if err != nil {
			return utils.Internal(err, "failed to load payment of booking %s", bookingID)
		}
		if fp.Status.CanTransitionTo(models.PaymentRefunded) {
			fp.Status = models.PaymentRefunded
			fp.RefundID = refund.ID
			fp.UpdatedAt = now
			if err := o.payments.Update(ctx, fp); err != nil {
				return utils.Internal(err, "failed to mark payment %s refunded", fp.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("booking refunded", zap.String("bookingId", bookingID), zap.String("refundId", refund.ID))
	o.notify(ctx, models.Notification{
		ReceiverID: booking.CustomerID,
		Title:      "Refund issued",
		Body:       fmt.Sprintf("Your payment of %.2f is being refunded.", p.Amount),
		Type:       models.NotifyRefundIssued,
		Reference:  models.Reference{Kind: models.RefBooking, ID: bookingID},
	})
	return booking, nil
}
