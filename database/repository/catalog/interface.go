package catalogRepo

import (
	"context"
	"errors"

	"bidmarket/models"
)

var ErrNotFound = errors.New("catalog entry not found")

// CatalogRepository reads current service prices and provider offers.
type CatalogRepository interface {
	CreateService(ctx context.Context, svc *models.Service) error
	// GetServicesByIDs returns the active services among ids keyed by id.
	GetServicesByIDs(ctx context.Context, ids []string) (map[string]models.Service, error)
	CreateOffer(ctx context.Context, offer *models.Offer) error
	// GetOffers returns the provider's active offers on the given services.
	GetOffers(ctx context.Context, providerID string, serviceIDs []string) ([]models.Offer, error)
}
