package couponRepo

import (
	"context"
	"errors"

	"bidmarket/models"
)

var (
	ErrNotFound = errors.New("coupon not found")
	// ErrStaleUsage means the counters moved since the coupon was read.
	ErrStaleUsage = errors.New("coupon usage changed concurrently")
)

type CouponRepository interface {
	Create(ctx context.Context, coupon *models.Coupon) error
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	GetByID(ctx context.Context, id string) (*models.Coupon, error)
	// IncrementUsage bumps usedCount and the user's counter, provided the stored
	// counters still equal the ones on the given coupon.
	IncrementUsage(ctx context.Context, coupon *models.Coupon, userID string) error
}
