package memoryRepo

import (
	"context"
	"sort"
	"time"

	settlementRepo "bidmarket/database/repository/settlement"
	"bidmarket/models"
)

type settlementStore struct{ *Store }

// Settlements returns the store's SettlementRepository.
func (s *Store) Settlements() settlementRepo.SettlementRepository { return settlementStore{s} }

func (r settlementStore) Create(ctx context.Context, intent *models.SettlementIntent) error {
	defer r.lock(ctx)()
	r.intents[intent.ID] = cloneIntent(*intent)
	return nil
}

func (r settlementStore) GetByCheckoutSession(ctx context.Context, sessionID string) (*models.SettlementIntent, error) {
	defer r.lock(ctx)()
	for _, i := range r.intents {
		if i.CheckoutSessionID == sessionID {
			out := cloneIntent(i)
			return &out, nil
		}
	}
	return nil, settlementRepo.ErrNotFound
}

func (r settlementStore) GetOpenByBooking(ctx context.Context, bookingID string) (*models.SettlementIntent, error) {
	defer r.lock(ctx)()
	var found *models.SettlementIntent
	for _, i := range r.intents {
		if i.BookingID != bookingID || i.Status != models.SettlementOpen {
			continue
		}
		if found == nil || i.CreatedAt.After(found.CreatedAt) {
			c := cloneIntent(i)
			found = &c
		}
	}
	if found == nil {
		return nil, settlementRepo.ErrNotFound
	}
	return found, nil
}

func (r settlementStore) Update(ctx context.Context, intent *models.SettlementIntent) error {
	defer r.lock(ctx)()
	if _, ok := r.intents[intent.ID]; !ok {
		return settlementRepo.ErrNotFound
	}
	intent.UpdatedAt = time.Now()
	r.intents[intent.ID] = cloneIntent(*intent)
	return nil
}

func (r settlementStore) ListStale(ctx context.Context, before time.Time, limit int64) ([]models.SettlementIntent, error) {
	defer r.lock(ctx)()
	var out []models.SettlementIntent
	for _, i := range r.intents {
		if i.Status != models.SettlementOpen || !i.CreatedAt.Before(before) {
			continue
		}
		if !i.LastCheckedAt.IsZero() && !i.LastCheckedAt.Before(before) {
			continue
		}
		out = append(out, cloneIntent(i))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}
