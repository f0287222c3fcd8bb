package paymentRepo

import (
	"context"
	"errors"

	"bidmarket/models"
)

var (
	ErrNotFound = errors.New("payment not found")
	// ErrDuplicateIntent is returned when a payment for the intent already exists.
	ErrDuplicateIntent = errors.New("payment for this payment intent already exists")
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
}
