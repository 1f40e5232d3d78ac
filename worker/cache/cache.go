package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statusKeyPrefix     = "task:status:"
	candidatesKeyPrefix = "task:candidates:"
	statusTTL           = 10 * time.Minute
	candidatesTTL       = 24 * time.Hour
)

type StatusCache struct {
	client *redis.Client
}

func NewStatusCache(client *redis.Client) *StatusCache {
	return &StatusCache{client: client}
}

func (c *StatusCache) SetStatus(ctx context.Context, productID, status string) error {
	return c.client.Set(ctx, statusKeyPrefix+productID, status, statusTTL).Err()
}

// SetCandidates publishes the structured candidate records for the
// selection UI; the API side reads and decodes the same key.
func (c *StatusCache) SetCandidates(ctx context.Context, productID string, candidates interface{}) error {
	data, err := json.Marshal(candidates)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, candidatesKeyPrefix+productID, data, candidatesTTL).Err()
}

func (c *StatusCache) DeleteCandidates(ctx context.Context, productID string) error {
	return c.client.Del(ctx, candidatesKeyPrefix+productID).Err()
}
