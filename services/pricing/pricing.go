// Package pricing turns a booking draft into amounts. It is pure: callers load
// catalog prices, offers and the coupon inside their transaction and pass them in.
package pricing

import (
	"math"
	"time"

	"bidmarket/models"
	"bidmarket/utils"
)

// Input is everything the engine reads.
type Input struct {
	LineItems      []models.LineItem
	Catalog        map[string]models.Service
	BidRate        *float64
	Offers         []models.Offer
	Coupon         *models.Coupon
	RevenuePercent float64
	Now            time.Time

	// CouponRedeemedAt is set when re-pricing a booking whose coupon was already
	// redeemed. Availability is then judged at that instant.
	CouponRedeemedAt time.Time
}

// Quote is the priced result. TotalAmount is the base the coupon applies to.
type Quote struct {
	LineItems      []models.LineItem
	CatalogTotal   float64
	OfferTotal     float64
	TotalAmount    float64
	Discount       float64
	FinalAmount    float64
	RevenuePercent float64
}

// Compute prices a booking.
func Compute(in Input) (*Quote, error) {
	if in.RevenuePercent < 0 || in.RevenuePercent > 100 || math.IsNaN(in.RevenuePercent) {
		return nil, utils.Internal(nil, "revenue percent %.2f is not a valid platform share", in.RevenuePercent).
			WithCode("UNKNOWN_REVENUE_PERCENT")
	}
	if len(in.LineItems) == 0 {
		return nil, utils.Validation("booking has no line items")
	}

	q := &Quote{RevenuePercent: in.RevenuePercent}
	for _, item := range in.LineItems {
		svc, ok := in.Catalog[item.ServiceID]
		if !ok {
			return nil, utils.Validation("service %s is not available", item.ServiceID).WithCode("UNKNOWN_SERVICE")
		}
		if item.Quantity <= 0 {
			return nil, utils.Validation("quantity for service %s must be positive", item.ServiceID)
		}
		if svc.Price < 0 {
			return nil, utils.Validation("service %s has a negative price", item.ServiceID)
		}
		item.UnitCharge = svc.Price
		q.LineItems = append(q.LineItems, item)
		q.CatalogTotal += svc.Price * float64(item.Quantity)
	}
	q.CatalogTotal = roundCents(q.CatalogTotal)

	base := q.CatalogTotal
	if in.BidRate != nil {
		rate := *in.BidRate
		if rate < 0 {
			return nil, utils.Validation("bid rate must not be negative")
		}
		q.OfferTotal = offerTotal(q.LineItems, in.Offers, in.Now)
		base = rate
		if q.OfferTotal > 0 && q.OfferTotal < rate {
			base = q.OfferTotal
		}
	}
	q.TotalAmount = base

	if in.Coupon != nil {
		discount, percent, err := applyCoupon(in.Coupon, base, in.RevenuePercent, in.Now, in.CouponRedeemedAt)
		if err != nil {
			return nil, err
		}
		q.Discount = discount
		q.RevenuePercent = percent
	}

	q.FinalAmount = roundCents(q.TotalAmount - q.Discount)
	if q.FinalAmount < 0 {
		return nil, utils.Validation("final amount would be negative")
	}
	return q, nil
}

// offerTotal prices the items with the provider's active offers. Items without
// an offer count at catalog price. It returns 0 when no offer applies at all.
func offerTotal(items []models.LineItem, offers []models.Offer, now time.Time) float64 {
	best := map[string]float64{}
	for _, o := range offers {
		if !o.ActiveAt(now) {
			continue
		}
		if o.DiscountPercent > best[o.ServiceID] {
			best[o.ServiceID] = math.Min(o.DiscountPercent, 100)
		}
	}
	if len(best) == 0 {
		return 0
	}

	applied := false
	total := 0.0
	for _, item := range items {
		line := item.UnitCharge * float64(item.Quantity)
		if pct, ok := best[item.ServiceID]; ok {
			line *= 1 - pct/100
			applied = true
		}
		total += line
	}
	if !applied {
		return 0
	}
	return roundCents(total)
}

// applyCoupon returns the discount and the platform share left after funding it.
func applyCoupon(c *models.Coupon, base, revenuePercent float64, now, redeemedAt time.Time) (float64, float64, error) {
	if !redeemedAt.IsZero() {
		now = redeemedAt
	} else if !c.IsActive {
		return 0, 0, utils.Validation("coupon %s is not active", c.Code).WithCode("INACTIVE")
	}
	if c.NotStarted(now) {
		return 0, 0, utils.Validation("coupon %s is not active yet", c.Code).WithCode("NOT_STARTED")
	}
	if c.Expired(now) {
		return 0, 0, utils.Validation("coupon %s has expired", c.Code).WithCode("EXPIRED")
	}
	if c.MinOrderAmount != nil && base < *c.MinOrderAmount {
		return 0, 0, utils.Validation("order amount %.2f is below the coupon minimum %.2f", base, *c.MinOrderAmount).
			WithCode("MIN_ORDER_NOT_MET")
	}
	if c.DiscountValue <= 0 {
		return 0, 0, utils.Validation("coupon %s has no discount value", c.Code)
	}

	switch c.DiscountType {
	case models.DiscountPercentage:
		if c.DiscountValue >= revenuePercent {
			return 0, 0, exceedsMargin(c.Code)
		}
		discount := base * c.DiscountValue / 100
		if c.MaxDiscountAmount != nil && discount > *c.MaxDiscountAmount {
			discount = *c.MaxDiscountAmount
		}
		return roundCents(discount), revenuePercent - c.DiscountValue, nil

	case models.DiscountFlat:
		if base <= 0 {
			return 0, 0, utils.Validation("flat coupon %s needs a positive order amount", c.Code)
		}
		equivalent := c.DiscountValue / base * 100
		if equivalent >= revenuePercent {
			return 0, 0, exceedsMargin(c.Code)
		}
		return roundCents(math.Min(c.DiscountValue, base)), revenuePercent - equivalent, nil
	}
	return 0, 0, utils.Validation("coupon %s has unknown discount type %q", c.Code, c.DiscountType)
}

func exceedsMargin(code string) error {
	return utils.Validation("coupon %s discount exceeds the available platform margin", code).
		WithCode("EXCEEDS_PLATFORM_MARGIN")
}

// AdminRevenueAmount is the platform's cut of a final amount, rounded up to a whole unit.
func AdminRevenueAmount(finalAmount, revenuePercent float64) float64 {
	return math.Ceil(roundCents(finalAmount * revenuePercent / 100))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// ProviderPayout is what the provider keeps of finalAmount once the platform cut is taken.
func ProviderPayout(finalAmount, revenuePercent float64) float64 {
	return roundCents(math.Max(finalAmount-AdminRevenueAmount(finalAmount, revenuePercent), 0))
}
