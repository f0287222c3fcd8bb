package coupon

import (
	"context"
	"errors"
	"time"

	couponRepo "bidmarket/database/repository/coupon"
	"bidmarket/models"
	"bidmarket/utils"

	"go.uber.org/zap"
)

const maxReserveAttempts = 3

// Ledger validates coupons and counts their redemptions.
type Ledger struct {
	repo   couponRepo.CouponRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewLedger(repo couponRepo.CouponRepository, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{repo: repo, logger: logger, now: time.Now}
}

// Lookup returns an active coupon by code.
func (l *Ledger) Lookup(ctx context.Context, code string) (*models.Coupon, error) {
	c, err := l.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, couponRepo.ErrNotFound) {
			return nil, utils.NotFound("coupon %s not found", code)
		}
		return nil, utils.Internal(err, "failed to load coupon")
	}
	return c, nil
}

// Reserve redeems the coupon for userID. Call it with the ctx of the booking
// transaction so the counters roll back with the booking write. The returned
// coupon reflects the counters before this redemption.
func (l *Ledger) Reserve(ctx context.Context, code, userID string) (*models.Coupon, error) {
	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		c, err := l.Lookup(ctx, code)
		if err != nil {
			return nil, err
		}
		if err := l.checkRedeemable(c, userID); err != nil {
			return nil, err
		}

		err = l.repo.IncrementUsage(ctx, c, userID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, couponRepo.ErrStaleUsage) {
			return nil, utils.Internal(err, "failed to reserve coupon")
		}
		l.logger.Debug("coupon counters moved, retrying",
			zap.String("code", code), zap.Int("attempt", attempt))
	}
	return nil, utils.Conflict("coupon %s is being redeemed concurrently, try again", code).
		WithCode("CONCURRENT_REDEMPTION")
}

func (l *Ledger) checkRedeemable(c *models.Coupon, userID string) error {
	now := l.now()
	if c.NotStarted(now) {
		return utils.Validation("coupon %s is not active yet", c.Code).WithCode("NOT_STARTED")
	}
	if c.Expired(now) {
		return utils.Validation("coupon %s has expired", c.Code).WithCode("EXPIRED")
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return utils.Conflict("coupon %s has reached its usage limit", c.Code).WithCode("GLOBAL_LIMIT_EXCEEDED")
	}
	if c.UserUsageLimitPerUser != nil && c.UsageFor(userID) >= *c.UserUsageLimitPerUser {
		return utils.Conflict("you have already used coupon %s the maximum number of times", c.Code).
			WithCode("USER_LIMIT_EXCEEDED")
	}
	return nil
}

// Get returns a coupon by id regardless of its state; bookings re-price with
// the coupon they redeemed.
func (l *Ledger) Get(ctx context.Context, id string) (*models.Coupon, error) {
	c, err := l.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, couponRepo.ErrNotFound) {
			return nil, utils.NotFound("coupon %s not found", id)
		}
		return nil, utils.Internal(err, "failed to load coupon")
	}
	return c, nil
}
