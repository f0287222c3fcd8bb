package booking

import (
	"context"
	"errors"
	"time"

	"bidmarket/database"
	bidRepo "bidmarket/database/repository/bid"
	bookingRepo "bidmarket/database/repository/booking"
	catalogRepo "bidmarket/database/repository/catalog"
	userRepo "bidmarket/database/repository/user"
	"bidmarket/models"
	"bidmarket/services/coupon"
	"bidmarket/services/notification"
	"bidmarket/services/pricing"
	"bidmarket/services/settlement"
	"bidmarket/services/storage"
	"bidmarket/utils"

	"go.uber.org/zap"
)

const defaultLockTTL = 15 * time.Second

type Config struct {
	DefaultRevenuePercent float64
	LockTTL               time.Duration
}

// Deps groups the collaborators of the booking service. Storage and Locker are optional.
type Deps struct {
	Tx         database.TxRunner
	Bookings   bookingRepo.BookingRepository
	Bids       bidRepo.BidRepository
	Catalog    catalogRepo.CatalogRepository
	Users      userRepo.UserRepository
	Coupons    *coupon.Ledger
	Settlement *settlement.Orchestrator
	Notifier   notification.Notifier
	Storage    storage.ObjectStorage
	Locker     Locker
	Logger     *zap.Logger
}

// Service implements BookingService.
type Service struct {
	tx         database.TxRunner
	bookings   bookingRepo.BookingRepository
	bids       bidRepo.BidRepository
	catalog    catalogRepo.CatalogRepository
	users      userRepo.UserRepository
	coupons    *coupon.Ledger
	settlement *settlement.Orchestrator
	notifier   notification.Notifier
	storage    storage.ObjectStorage
	locker     Locker
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

var _ BookingService = (*Service)(nil)

func New(d Deps, cfg Config) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &Service{
		tx:         d.Tx,
		bookings:   d.Bookings,
		bids:       d.Bids,
		catalog:    d.Catalog,
		users:      d.Users,
		coupons:    d.Coupons,
		settlement: d.Settlement,
		notifier:   d.Notifier,
		storage:    d.Storage,
		locker:     d.Locker,
		cfg:        cfg,
		logger:     logger.Named("booking"),
		now:        time.Now,
	}
}

// lock takes the per-booking lock. A Redis outage does not block the command:
// the transactional re-read still decides.
func (s *Service) lock(ctx context.Context, bookingID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Acquire(ctx, "booking:"+bookingID, s.cfg.LockTTL)
	if errors.Is(err, utils.ErrLockHeld) {
		return nil, utils.Conflict("booking %s is being updated, try again", bookingID).WithCode("BOOKING_BUSY")
	}
	if err != nil {
		s.logger.Warn("booking lock unavailable, continuing without it", zap.String("bookingId", bookingID), zap.Error(err))
		return func() {}, nil
	}
	return release, nil
}

func (s *Service) loadBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if errors.Is(err, bookingRepo.ErrNotFound) {
		return nil, utils.NotFound("booking %s not found", id)
	}
	if err != nil {
		return nil, utils.Internal(err, "failed to load booking %s", id)
	}
	return b, nil
}

func (s *Service) loadOwnedBooking(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	b, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != actor.ID {
		return nil, utils.Forbidden("booking %s belongs to another customer", id)
	}
	return b, nil
}

// loadBidOf returns a bid of the given booking.
func (s *Service) loadBidOf(ctx context.Context, b *models.Booking, bidID string) (*models.Bid, error) {
	bid, err := s.bids.GetByID(ctx, bidID)
	if errors.Is(err, bidRepo.ErrNotFound) || (err == nil && bid.BookingID != b.ID) {
		return nil, utils.NotFound("bid %s not found on booking %s", bidID, b.ID)
	}
	if err != nil {
		return nil, utils.Internal(err, "failed to load bid %s", bidID)
	}
	return bid, nil
}

// revenuePercent is the platform share for work done by the provider.
func (s *Service) revenuePercent(p *models.User) float64 {
	if p != nil && p.AdminRevenuePercent != nil {
		return *p.AdminRevenuePercent
	}
	return s.cfg.DefaultRevenuePercent
}

func (s *Service) loadProvider(ctx context.Context, id string) (*models.User, error) {
	p, err := s.users.GetByID(ctx, id)
	if errors.Is(err, userRepo.ErrNotFound) || (err == nil && p.Role != models.RoleProvider) {
		return nil, utils.NotFound("provider %s not found", id)
	}
	if err != nil {
		return nil, utils.Internal(err, "failed to load provider %s", id)
	}
	return p, nil
}

// quoteFor re-prices a booking at the rate of bid.
func (s *Service) quoteFor(ctx context.Context, b *models.Booking, bid *models.Bid) (*pricing.Quote, error) {
	ids := serviceIDs(b.LineItems)
	services, err := s.catalog.GetServicesByIDs(ctx, ids)
	if err != nil {
		return nil, utils.Internal(err, "failed to load services")
	}
	offers, err := s.catalog.GetOffers(ctx, bid.ProviderID, ids)
	if err != nil {
		return nil, utils.Internal(err, "failed to load offers")
	}
	provider, err := s.loadProvider(ctx, bid.ProviderID)
	if err != nil {
		return nil, err
	}

	in := pricing.Input{
		LineItems:      b.LineItems,
		Catalog:        services,
		BidRate:        &bid.Rate,
		Offers:         offers,
		RevenuePercent: s.revenuePercent(provider),
		Now:            s.now(),
	}
	if b.CouponID != "" {
		c, err := s.coupons.Get(ctx, b.CouponID)
		if err != nil {
			return nil, err
		}
		in.Coupon = c
		in.CouponRedeemedAt = b.CreatedAt
	}
	return pricing.Compute(in)
}

func (s *Service) notify(ctx context.Context, n models.Notification) {
	notification.Deliver(ctx, s.notifier, s.logger, n)
}

// discardAttachments deletes uploads of a booking that was never created.
func (s *Service) discardAttachments(ctx context.Context, urls []string) {
	if s.storage == nil {
		return
	}
	for _, url := range urls {
		if err := s.storage.Delete(ctx, url); err != nil {
			s.logger.Warn("orphaned attachment not deleted", zap.String("url", url), zap.Error(err))
		}
	}
}

func serviceIDs(items []models.LineItem) []string {
	seen := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if !seen[it.ServiceID] {
			seen[it.ServiceID] = true
			ids = append(ids, it.ServiceID)
		}
	}
	return ids
}

func amountsOf(q *pricing.Quote) settlement.Amounts {
	return settlement.Amounts{
		Total:          q.TotalAmount,
		Discount:       q.Discount,
		Final:          q.FinalAmount,
		RevenuePercent: q.RevenuePercent,
	}
}

func amountsOfBooking(b *models.Booking) settlement.Amounts {
	return settlement.Amounts{
		Total:          b.TotalAmount,
		Discount:       b.Discount,
		Final:          b.FinalAmount,
		RevenuePercent: b.AdminRevenuePercent,
	}
}
