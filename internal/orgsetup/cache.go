package orgsetup

import (
	"context"
	"encoding/json"
	"time"

	"reloop-backend/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache is a read-through Redis cache for the active hierarchy version.
// Misses and Redis failures fall back to the database; the cache is
// invalidated in the same code path that swaps the active version.
type Cache struct {
	Rdb *redis.Client
	TTL time.Duration
}

const cacheKeyPrefix = "orgsetup:active:"

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{Rdb: rdb, TTL: 10 * time.Minute}
}

func cacheKey(organizationID uuid.UUID) string {
	return cacheKeyPrefix + organizationID.String()
}

// Get returns the cached active version, or ok=false on miss or error.
func (c *Cache) Get(ctx context.Context, organizationID uuid.UUID) (*models.OrganizationSetup, bool) {
	raw, err := c.Rdb.Get(ctx, cacheKey(organizationID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("orgsetup cache read failed")
		}
		return nil, false
	}
	var version models.OrganizationSetup
	if err := json.Unmarshal(raw, &version); err != nil {
		log.Warn().Err(err).Msg("orgsetup cache entry corrupt, dropping")
		c.Invalidate(ctx, organizationID)
		return nil, false
	}
	return &version, true
}

// Set stores the active version. Best-effort; failures only cost a later DB read.
func (c *Cache) Set(ctx context.Context, organizationID uuid.UUID, version *models.OrganizationSetup) {
	raw, err := json.Marshal(version)
	if err != nil {
		return
	}
	if err := c.Rdb.Set(ctx, cacheKey(organizationID), raw, c.TTL).Err(); err != nil {
		log.Warn().Err(err).Msg("orgsetup cache write failed")
	}
}

// Invalidate drops the cached active version for the organization.
func (c *Cache) Invalidate(ctx context.Context, organizationID uuid.UUID) {
	if err := c.Rdb.Del(ctx, cacheKey(organizationID)).Err(); err != nil {
		log.Warn().Err(err).Msg("orgsetup cache invalidation failed")
	}
}
