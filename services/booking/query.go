package booking

import (
	"context"
	"errors"
	"strings"

	bidRepo "bidmarket/database/repository/bid"
	"bidmarket/models"
	"bidmarket/utils"

	"go.uber.org/zap"
)

// Refund pays back a cancelled online booking. Admin only.
func (s *Service) Refund(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error) {
	if !actor.IsAdmin() {
		return nil, utils.Forbidden("only admins can issue refunds")
	}
	return s.settlement.Refund(ctx, bookingID)
}

// VerifyCompletionCode checks the code the customer hands the provider at the
// end of the job. Completing the bid requires a verified code.
func (s *Service) VerifyCompletionCode(ctx context.Context, actor models.Actor, bookingID, code string) (*models.Booking, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.IsProvider() || b.AssignedProviderID != actor.ID {
		return nil, utils.Forbidden("only the assigned provider can verify completion")
	}
	if b.Status != models.BookingWorkStarted || b.CompletionCodeHash == "" {
		return nil, utils.InvalidTransition("booking %s has no completion code to verify", bookingID)
	}
	if b.CompletionVerified {
		return b, nil
	}
	if !utils.VerifyCompletionCode(b.CompletionCodeHash, strings.TrimSpace(code)) {
		s.logger.Info("wrong completion code", zap.String("bookingId", bookingID), zap.String("providerId", actor.ID))
		return nil, utils.Validation("completion code does not match").WithCode("INVALID_COMPLETION_CODE")
	}

	b.CompletionVerified = true
	b.UpdatedAt = s.now()
	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, utils.Internal(err, "failed to update booking %s", bookingID)
	}
	return b, nil
}

// Get returns a booking visible to the actor: its customer, a provider who bid
// on it, or an admin.
func (s *Service) Get(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.IsAdmin(), b.CustomerID == actor.ID, b.AssignedProviderID == actor.ID:
		return b, nil
	case actor.IsProvider():
		_, err := s.bids.FindByBookingAndProvider(ctx, bookingID, actor.ID)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, bidRepo.ErrNotFound) {
			return nil, utils.Internal(err, "failed to check bid")
		}
	}
	return nil, utils.Forbidden("booking %s is not visible to you", bookingID)
}

func (s *Service) ListForCustomer(ctx context.Context, actor models.Actor) ([]models.Booking, error) {
	if !actor.IsCustomer() {
		return nil, utils.Forbidden("only customers have bookings")
	}
	list, err := s.bookings.ListByCustomer(ctx, actor.ID)
	if err != nil {
		return nil, utils.Internal(err, "failed to list bookings")
	}
	return list, nil
}
