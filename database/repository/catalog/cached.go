package catalogRepo

import (
	"context"
	"encoding/json"
	"time"

	"bidmarket/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const serviceCachePrefix = "catalog:service:"

// CachedCatalogRepo serves service prices from Redis and falls back to the
// wrapped repository. Offers are never cached. A Redis failure only costs a
// cache miss.
type CachedCatalogRepo struct {
	CatalogRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedCatalogRepo(inner CatalogRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedCatalogRepo {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCatalogRepo{CatalogRepository: inner, client: client, ttl: ttl, logger: logger}
}

func (r *CachedCatalogRepo) CreateService(ctx context.Context, svc *models.Service) error {
	if err := r.CatalogRepository.CreateService(ctx, svc); err != nil {
		return err
	}
	if err := r.client.Del(ctx, serviceCachePrefix+svc.ID).Err(); err != nil {
		r.logger.Warn("catalog cache invalidation failed", zap.String("serviceId", svc.ID), zap.Error(err))
	}
	return nil
}

func (r *CachedCatalogRepo) GetServicesByIDs(ctx context.Context, ids []string) (map[string]models.Service, error) {
	out := make(map[string]models.Service, len(ids))
	missing := r.fromCache(ctx, ids, out)
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := r.CatalogRepository.GetServicesByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	pipe := r.client.Pipeline()
	for id, svc := range loaded {
		out[id] = svc
		if raw, err := json.Marshal(svc); err == nil {
			pipe.Set(ctx, serviceCachePrefix+id, raw, r.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Debug("catalog cache fill failed", zap.Error(err))
	}
	return out, nil
}

// fromCache fills out with cached services and returns the ids it could not serve.
func (r *CachedCatalogRepo) fromCache(ctx context.Context, ids []string, out map[string]models.Service) []string {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = serviceCachePrefix + id
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		r.logger.Debug("catalog cache read failed", zap.Error(err))
		return ids
	}

	var missing []string
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var svc models.Service
		if err := json.Unmarshal([]byte(raw), &svc); err != nil || !svc.IsActive {
			missing = append(missing, ids[i])
			continue
		}
		out[ids[i]] = svc
	}
	return missing
}
