// Package memoryRepo holds in-process implementations of every repository and
// of database.TxRunner. Transactions are serialized and roll back by restoring a
// snapshot, which gives service tests the all-or-nothing behaviour of MongoDB.
package memoryRepo

import (
	"context"
	"sync"

	"bidmarket/database"
	"bidmarket/models"
)

type Store struct {
	mu sync.Mutex

	bookings map[string]models.Booking
	bids     map[string]models.Bid
	coupons  map[string]models.Coupon
	payments map[string]models.Payment
	ledgers  map[string]models.EarningsLedger
	services map[string]models.Service
	offers   map[string]models.Offer
	intents  map[string]models.SettlementIntent
	users    map[string]models.User
}

func New() *Store {
	return &Store{
		bookings: map[string]models.Booking{},
		bids:     map[string]models.Bid{},
		coupons:  map[string]models.Coupon{},
		payments: map[string]models.Payment{},
		ledgers:  map[string]models.EarningsLedger{},
		services: map[string]models.Service{},
		offers:   map[string]models.Offer{},
		intents:  map[string]models.SettlementIntent{},
		users:    map[string]models.User{},
	}
}

// lock takes the store lock unless ctx already holds it through WithTransaction.
func (s *Store) lock(ctx context.Context) func() {
	if database.InTransaction(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithTransaction implements database.TxRunner.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if database.InTransaction(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(database.MarkTransaction(ctx)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	bookings map[string]models.Booking
	bids     map[string]models.Bid
	coupons  map[string]models.Coupon
	payments map[string]models.Payment
	ledgers  map[string]models.EarningsLedger
	services map[string]models.Service
	offers   map[string]models.Offer
	intents  map[string]models.SettlementIntent
	users    map[string]models.User
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		bookings: cloneMap(s.bookings, cloneBooking),
		bids:     cloneMap(s.bids, cloneBid),
		coupons:  cloneMap(s.coupons, cloneCoupon),
		payments: cloneMap(s.payments, identity[models.Payment]),
		ledgers:  cloneMap(s.ledgers, identity[models.EarningsLedger]),
		services: cloneMap(s.services, identity[models.Service]),
		offers:   cloneMap(s.offers, identity[models.Offer]),
		intents:  cloneMap(s.intents, cloneIntent),
		users:    cloneMap(s.users, identity[models.User]),
	}
}

func (s *Store) restore(snap snapshot) {
	s.bookings = snap.bookings
	s.bids = snap.bids
	s.coupons = snap.coupons
	s.payments = snap.payments
	s.ledgers = snap.ledgers
	s.services = snap.services
	s.offers = snap.offers
	s.intents = snap.intents
	s.users = snap.users
}

func cloneMap[T any](in map[string]T, clone func(T) T) map[string]T {
	out := make(map[string]T, len(in))
	for k, v := range in {
		out[k] = clone(v)
	}
	return out
}

func identity[T any](v T) T { return v }

func cloneTimes[K comparable, V any](in map[K]V) map[K]V {
	if in == nil {
		return nil
	}
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneBooking(b models.Booking) models.Booking {
	b.LineItems = append([]models.LineItem(nil), b.LineItems...)
	b.Attachments = append([]string(nil), b.Attachments...)
	b.StatusChangeTimes = cloneTimes(b.StatusChangeTimes)
	if b.Payout != nil {
		plan := *b.Payout
		b.Payout = &plan
	}
	return b
}

func cloneBid(b models.Bid) models.Bid {
	b.StatusChangeTimes = cloneTimes(b.StatusChangeTimes)
	return b
}

func cloneCoupon(c models.Coupon) models.Coupon {
	c.UsedCountByUser = append([]models.UserUsage{}, c.UsedCountByUser...)
	return c
}

func cloneIntent(i models.SettlementIntent) models.SettlementIntent {
	i.Receivers = append([]string(nil), i.Receivers...)
	return i
}
