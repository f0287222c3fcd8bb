package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	userRepo "bidmarket/database/repository/user"
	"bidmarket/models"
	"bidmarket/services/pricing"
	"bidmarket/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SettleCash books a cash job the provider has collected. It must run inside
// the transaction that completes the bid: the provider owes the platform cut,
// the booking becomes PAID and COMPLETED, and a CASH payment is recorded.
func (o *Orchestrator) SettleCash(ctx context.Context, booking *models.Booking, bid *models.Bid) (*models.Payment, error) {
	if !booking.CompletionVerified {
		return nil, utils.InvalidTransition("completion code for booking %s has not been verified", booking.ID).
			WithCode("COMPLETION_NOT_VERIFIED")
	}
	if !booking.PaymentStatus.CanTransitionTo(models.PaymentPaid) {
		return nil, utils.Conflict("booking %s is already %s", booking.ID, booking.PaymentStatus)
	}

	adminCut := pricing.AdminRevenueAmount(booking.FinalAmount, booking.AdminRevenuePercent)
	if _, err := o.ledger.AddAdminDue(ctx, bid.ProviderID, adminCut); err != nil {
		return nil, err
	}
	if _, err := o.ledger.CreditCollected(ctx, bid.ProviderID, booking.FinalAmount, adminCut); err != nil {
		return nil, err
	}

	now := o.now()
	p := &models.Payment{
		ID:            uuid.New().String(),
		CustomerID:    booking.CustomerID,
		BookingID:     booking.ID,
		Method:        models.PaymentCash,
		Status:        models.PaymentPaid,
		TransactionID: "cash:" + booking.ID,
		Amount:        booking.FinalAmount,
		Currency:      o.cfg.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.payments.Create(ctx, p); err != nil {
		return nil, utils.Internal(err, "failed to record cash payment")
	}

	booking.PaymentID = p.ID
	booking.PaymentStatus = models.PaymentPaid
	booking.IsPaymentTransferred = true
	booking.SetStatus(models.BookingCompleted, now)
	if err := o.bookings.Update(ctx, booking); err != nil {
		return nil, utils.Internal(err, "failed to complete booking %s", booking.ID)
	}

	o.logger.Info("cash booking settled",
		zap.String("bookingId", booking.ID),
		zap.String("providerId", bid.ProviderID),
		zap.Float64("amount", booking.FinalAmount),
		zap.Float64("adminDue", adminCut))
	return p, nil
}

// IssueInvoice renders the receipt of a settled booking and sends its link to the
// customer. Failures are logged; settlement does not depend on the invoice.
func (o *Orchestrator) IssueInvoice(ctx context.Context, booking *models.Booking, p *models.Payment) {
	if o.invoices == nil || p == nil {
		return
	}
	inv := models.Invoice{
		InvoiceID:     "INV-" + strings.ToUpper(strings.ReplaceAll(p.ID, "-", "")[:10]),
		Reference:     models.Reference{Kind: models.RefPayment, ID: p.ID},
		CustomerName:  o.displayName(ctx, booking.CustomerID),
		ProviderName:  o.displayName(ctx, booking.AssignedProviderID),
		LineItems:     booking.LineItems,
		TotalAmount:   booking.TotalAmount,
		Discount:      booking.Discount,
		FinalAmount:   p.Amount,
		Currency:      p.Currency,
		PaymentMethod: p.Method,
		PaymentID:     p.ID,
		IssuedAt:      o.now(),
	}
	url, err := o.invoices.Issue(ctx, inv)
	if err != nil {
		o.logger.Warn("invoice not issued", zap.String("paymentId", p.ID), zap.Error(err))
		return
	}
	o.notify(ctx, models.Notification{
		ReceiverID: booking.CustomerID,
		Title:      "Your receipt is ready",
		Body:       fmt.Sprintf("Receipt %s for %.2f %s.", inv.InvoiceID, p.Amount, strings.ToUpper(p.Currency)),
		Type:       models.NotifyInvoiceReady,
		Reference:  models.Reference{Kind: models.RefBooking, ID: booking.ID},
		Data:       map[string]string{"url": url},
	})
}

func (o *Orchestrator) displayName(ctx context.Context, userID string) string {
	if userID == "" || o.users == nil {
		return ""
	}
	u, err := o.users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, userRepo.ErrNotFound) {
			o.logger.Debug("profile lookup failed", zap.String("userId", userID), zap.Error(err))
		}
		return ""
	}
	return u.Name
}
