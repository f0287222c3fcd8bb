package memoryRepo

import (
	"context"
	"time"

	paymentRepo "bidmarket/database/repository/payment"
	"bidmarket/models"
)

type paymentStore struct{ *Store }

// Payments returns the store's PaymentRepository.
func (s *Store) Payments() paymentRepo.PaymentRepository { return paymentStore{s} }

func (r paymentStore) Create(ctx context.Context, payment *models.Payment) error {
	defer r.lock(ctx)()
	if payment.PaymentIntentID != "" {
		for _, p := range r.payments {
			if p.PaymentIntentID == payment.PaymentIntentID {
				return paymentRepo.ErrDuplicateIntent
			}
		}
	}
	r.payments[payment.ID] = *payment
	return nil
}

func (r paymentStore) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	defer r.lock(ctx)()
	p, ok := r.payments[id]
	if !ok {
		return nil, paymentRepo.ErrNotFound
	}
	return &p, nil
}

func (r paymentStore) GetByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	defer r.lock(ctx)()
	for _, p := range r.payments {
		if intentID != "" && p.PaymentIntentID == intentID {
			out := p
			return &out, nil
		}
	}
	return nil, paymentRepo.ErrNotFound
}

func (r paymentStore) Update(ctx context.Context, payment *models.Payment) error {
	defer r.lock(ctx)()
	if _, ok := r.payments[payment.ID]; !ok {
		return paymentRepo.ErrNotFound
	}
	payment.UpdatedAt = time.Now()
	r.payments[payment.ID] = *payment
	return nil
}

// PaymentCount is a test helper reporting how many payments are stored.
func (s *Store) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}
