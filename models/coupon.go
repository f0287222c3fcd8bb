package models

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFlat       DiscountType = "FLAT"
)

// UserUsage counts how many times one user redeemed a coupon.
type UserUsage struct {
	UserID string `bson:"userId" json:"userId"`
	Count  int    `bson:"count" json:"count"`
}

type Coupon struct {
	ID                    string       `bson:"id" json:"id"`
	Code                  string       `bson:"code" json:"code"`
	DiscountType          DiscountType `bson:"discountType" json:"discountType"`
	DiscountValue         float64      `bson:"discountValue" json:"discountValue"`
	MaxDiscountAmount     *float64     `bson:"maxDiscountAmount,omitempty" json:"maxDiscountAmount,omitempty"`
	MinOrderAmount        *float64     `bson:"minOrderAmount,omitempty" json:"minOrderAmount,omitempty"`
	UsageLimit            *int         `bson:"usageLimit,omitempty" json:"usageLimit,omitempty"`
	UserUsageLimitPerUser *int         `bson:"userUsageLimitPerUser,omitempty" json:"userUsageLimitPerUser,omitempty"`
	UsedCount             int          `bson:"usedCount" json:"usedCount"`
	UsedCountByUser       []UserUsage  `bson:"usedCountByUser" json:"usedCountByUser"`
	StartDate             time.Time    `bson:"startDate" json:"startDate"`
	EndDate               time.Time    `bson:"endDate" json:"endDate"`
	IsActive              bool         `bson:"isActive" json:"isActive"`
	CreatedAt             time.Time    `bson:"createdAt" json:"createdAt"`
}

// UsageFor returns how many times userID has used the coupon.
func (c *Coupon) UsageFor(userID string) int {
	for _, u := range c.UsedCountByUser {
		if u.UserID == userID {
			return u.Count
		}
	}
	return 0
}

// NotStarted reports whether now is before the activation window.
func (c *Coupon) NotStarted(now time.Time) bool {
	return now.Before(c.StartDate)
}

// Expired reports whether now is after the activation window.
func (c *Coupon) Expired(now time.Time) bool {
	return !c.EndDate.IsZero() && now.After(c.EndDate)
}
