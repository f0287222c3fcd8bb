package userRepo

import (
	"context"
	"errors"

	"bidmarket/models"
)

// ErrNotFound is returned when no user matches.
var ErrNotFound = errors.New("user not found")

// UserRepository defines methods for user data access.
type UserRepository interface {
	// GetByID retrieves a user by its unique ID.
	GetByID(ctx context.Context, id string) (*models.User, error)
	// Create inserts a new user record.
	Create(ctx context.Context, user *models.User) error
	// SetAdminDue mirrors the provider's ledger adminDue onto the profile.
	SetAdminDue(ctx context.Context, id string, amount float64) error
	// SetFCMToken stores the device token push notifications go to.
	SetFCMToken(ctx context.Context, id, token string) error
}
