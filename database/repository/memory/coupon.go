package memoryRepo

import (
	"context"
	"strings"

	couponRepo "bidmarket/database/repository/coupon"
	"bidmarket/models"
)

type couponStore struct{ *Store }

// Coupons returns the store's CouponRepository.
func (s *Store) Coupons() couponRepo.CouponRepository { return couponStore{s} }

func (r couponStore) Create(ctx context.Context, coupon *models.Coupon) error {
	defer r.lock(ctx)()
	coupon.Code = strings.ToUpper(coupon.Code)
	r.coupons[coupon.ID] = cloneCoupon(*coupon)
	return nil
}

func (r couponStore) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	defer r.lock(ctx)()
	code = strings.ToUpper(code)
	for _, c := range r.coupons {
		if c.Code == code && c.IsActive {
			out := cloneCoupon(c)
			return &out, nil
		}
	}
	return nil, couponRepo.ErrNotFound
}

func (r couponStore) GetByID(ctx context.Context, id string) (*models.Coupon, error) {
	defer r.lock(ctx)()
	c, ok := r.coupons[id]
	if !ok {
		return nil, couponRepo.ErrNotFound
	}
	out := cloneCoupon(c)
	return &out, nil
}

func (r couponStore) IncrementUsage(ctx context.Context, coupon *models.Coupon, userID string) error {
	defer r.lock(ctx)()
	stored, ok := r.coupons[coupon.ID]
	if !ok || stored.UsedCount != coupon.UsedCount || stored.UsageFor(userID) != coupon.UsageFor(userID) {
		return couponRepo.ErrStaleUsage
	}

	stored = cloneCoupon(stored)
	stored.UsedCount++
	found := false
	for i := range stored.UsedCountByUser {
		if stored.UsedCountByUser[i].UserID == userID {
			stored.UsedCountByUser[i].Count++
			found = true
		}
	}
	if !found {
		stored.UsedCountByUser = append(stored.UsedCountByUser, models.UserUsage{UserID: userID, Count: 1})
	}
	r.coupons[coupon.ID] = stored
	return nil
}
