package memoryRepo

import (
	"context"
	"sort"
	"time"

	bidRepo "bidmarket/database/repository/bid"
	"bidmarket/models"
)

type bidStore struct{ *Store }

// Bids returns the store's BidRepository.
func (s *Store) Bids() bidRepo.BidRepository { return bidStore{s} }

func (r bidStore) Create(ctx context.Context, bid *models.Bid) error {
	defer r.lock(ctx)()
	for _, b := range r.bids {
		if !b.IsDeleted && b.BookingID == bid.BookingID && b.ProviderID == bid.ProviderID {
			return bidRepo.ErrDuplicate
		}
	}
	now := time.Now()
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = now
	}
	bid.UpdatedAt = now
	r.bids[bid.ID] = cloneBid(*bid)
	return nil
}

func (r bidStore) GetByID(ctx context.Context, id string) (*models.Bid, error) {
	defer r.lock(ctx)()
	b, ok := r.bids[id]
	if !ok || b.IsDeleted {
		return nil, bidRepo.ErrNotFound
	}
	out := cloneBid(b)
	return &out, nil
}

func (r bidStore) Update(ctx context.Context, bid *models.Bid) error {
	defer r.lock(ctx)()
	if _, ok := r.bids[bid.ID]; !ok {
		return bidRepo.ErrNotFound
	}
	bid.UpdatedAt = time.Now()
	r.bids[bid.ID] = cloneBid(*bid)
	return nil
}

func (r bidStore) ListByBooking(ctx context.Context, bookingID string) ([]models.Bid, error) {
	defer r.lock(ctx)()
	var out []models.Bid
	for _, b := range r.bids {
		if b.BookingID == bookingID && !b.IsDeleted {
			out = append(out, cloneBid(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r bidStore) FindByBookingAndProvider(ctx context.Context, bookingID, providerID string) (*models.Bid, error) {
	defer r.lock(ctx)()
	for _, b := range r.bids {
		if b.BookingID == bookingID && b.ProviderID == providerID && !b.IsDeleted {
			out := cloneBid(b)
			return &out, nil
		}
	}
	return nil, bidRepo.ErrNotFound
}

func (r bidStore) SetStatusForBooking(ctx context.Context, bookingID, excludeID string, from []models.BidStatus, to models.BidStatus, at time.Time) (int64, error) {
	defer r.lock(ctx)()
	var n int64
	for id, b := range r.bids {
		if b.BookingID != bookingID || b.IsDeleted || id == excludeID || !containsStatus(from, b.Status) {
			continue
		}
		b.SetStatus(to, at)
		r.bids[id] = b
		n++
	}
	return n, nil
}

func containsStatus(list []models.BidStatus, s models.BidStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
