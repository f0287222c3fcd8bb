package memoryRepo

import (
	"context"

	catalogRepo "bidmarket/database/repository/catalog"
	"bidmarket/models"
)

type catalogStore struct{ *Store }

// Catalog returns the store's CatalogRepository.
func (s *Store) Catalog() catalogRepo.CatalogRepository { return catalogStore{s} }

func (r catalogStore) CreateService(ctx context.Context, svc *models.Service) error {
	defer r.lock(ctx)()
	r.services[svc.ID] = *svc
	return nil
}

func (r catalogStore) GetServicesByIDs(ctx context.Context, ids []string) (map[string]models.Service, error) {
	defer r.lock(ctx)()
	out := make(map[string]models.Service, len(ids))
	for _, id := range ids {
		if svc, ok := r.services[id]; ok && svc.IsActive {
			out[id] = svc
		}
	}
	return out, nil
}

func (r catalogStore) CreateOffer(ctx context.Context, offer *models.Offer) error {
	defer r.lock(ctx)()
	r.offers[offer.ID] = *offer
	return nil
}

func (r catalogStore) GetOffers(ctx context.Context, providerID string, serviceIDs []string) ([]models.Offer, error) {
	defer r.lock(ctx)()
	wanted := make(map[string]bool, len(serviceIDs))
	for _, id := range serviceIDs {
		wanted[id] = true
	}
	var out []models.Offer
	for _, o := range r.offers {
		if o.ProviderID == providerID && o.IsActive && wanted[o.ServiceID] {
			out = append(out, o)
		}
	}
	return out, nil
}
