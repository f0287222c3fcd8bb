package models

import "time"

// Service is a catalog entry with its current list price.
type Service struct {
	ID         string    `bson:"id" json:"id"`
	CategoryID string    `bson:"categoryId" json:"categoryId"`
	Name       string    `bson:"name" json:"name"`
	Price      float64   `bson:"price" json:"price"`
	IsActive   bool      `bson:"isActive" json:"isActive"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}

// Offer is a provider's promotional discount on one service.
// It points at the service; services keep no list of offers.
type Offer struct {
	ID              string    `bson:"id" json:"id"`
	ProviderID      string    `bson:"providerId" json:"providerId"`
	ServiceID       string    `bson:"serviceId" json:"serviceId"`
	DiscountPercent float64   `bson:"discountPercent" json:"discountPercent"`
	StartDate       time.Time `bson:"startDate" json:"startDate"`
	EndDate         time.Time `bson:"endDate" json:"endDate"`
	IsActive        bool      `bson:"isActive" json:"isActive"`
}

// ActiveAt reports whether the offer applies at the given time.
func (o *Offer) ActiveAt(now time.Time) bool {
	if !o.IsActive || o.DiscountPercent <= 0 {
		return false
	}
	if now.Before(o.StartDate) {
		return false
	}
	return o.EndDate.IsZero() || !now.After(o.EndDate)
}
