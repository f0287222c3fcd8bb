// models/user.go
package models

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// User is the identity/profile record consulted by settlement.
type User struct {
	ID                     string    `bson:"id" json:"id"`
	Role                   Role      `bson:"role" json:"role"`
	Name                   string    `bson:"name" json:"name"`
	Email                  string    `bson:"email" json:"email"`
	FCMToken               string    `bson:"fcmToken,omitempty" json:"-"`
	StripeCustomerID       string    `bson:"stripeCustomerId,omitempty" json:"stripeCustomerId,omitempty"`
	StripeConnectedAccount string    `bson:"stripeConnectedAccount,omitempty" json:"stripeConnectedAccount,omitempty"`
	AdminRevenuePercent    *float64  `bson:"adminRevenuePercent,omitempty" json:"adminRevenuePercent,omitempty"`
	AdminDueAmount         float64   `bson:"adminDueAmount" json:"adminDueAmount"`
	CreatedAt              time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt              time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsCustomer() bool { return a.Role == RoleCustomer }
func (a Actor) IsProvider() bool { return a.Role == RoleProvider }
func (a Actor) IsAdmin() bool    { return a.Role == RoleAdmin }
