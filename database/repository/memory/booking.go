package memoryRepo

import (
	"context"
	"sort"
	"time"

	bookingRepo "bidmarket/database/repository/booking"
	"bidmarket/models"
)

type bookingStore struct{ *Store }

// Bookings returns the store's BookingRepository.
func (s *Store) Bookings() bookingRepo.BookingRepository { return bookingStore{s} }

func (r bookingStore) Create(ctx context.Context, booking *models.Booking) error {
	defer r.lock(ctx)()
	now := time.Now()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	r.bookings[booking.ID] = cloneBooking(*booking)
	return nil
}

func (r bookingStore) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	defer r.lock(ctx)()
	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingRepo.ErrNotFound
	}
	out := cloneBooking(b)
	return &out, nil
}

func (r bookingStore) Update(ctx context.Context, booking *models.Booking) error {
	defer r.lock(ctx)()
	if _, ok := r.bookings[booking.ID]; !ok {
		return bookingRepo.ErrNotFound
	}
	booking.UpdatedAt = time.Now()
	r.bookings[booking.ID] = cloneBooking(*booking)
	return nil
}

func (r bookingStore) ListByCustomer(ctx context.Context, customerID string) ([]models.Booking, error) {
	defer r.lock(ctx)()
	var out []models.Booking
	for _, b := range r.bookings {
		if b.CustomerID == customerID {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r bookingStore) ListAwaitingTransfer(ctx context.Context, limit int64) ([]models.Booking, error) {
	defer r.lock(ctx)()
	var out []models.Booking
	for _, b := range r.bookings {
		if b.AwaitingTransfer && b.PaymentStatus == models.PaymentPaid {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}
