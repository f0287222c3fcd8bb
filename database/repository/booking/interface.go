package bookingRepo

import (
	"context"
	"errors"

	"bidmarket/models"
)

// ErrNotFound is returned when no booking matches.
var ErrNotFound = errors.New("booking not found")

// BookingRepository defines methods for booking data access.
type BookingRepository interface {
	// Create inserts a new booking.
	Create(ctx context.Context, booking *models.Booking) error
	// GetByID retrieves a booking by its unique ID.
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	// Update replaces the stored booking with the given one.
	Update(ctx context.Context, booking *models.Booking) error
	// ListByCustomer returns a customer's bookings, newest first.
	ListByCustomer(ctx context.Context, customerID string) ([]models.Booking, error)
	// ListAwaitingTransfer returns paid bookings whose provider payout has not been booked yet.
	ListAwaitingTransfer(ctx context.Context, limit int64) ([]models.Booking, error)
}
