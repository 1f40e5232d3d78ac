package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"imagecurator/api/database"
	"imagecurator/api/models"
)

const (
	statusKeyPrefix     = "task:status:"
	candidatesKeyPrefix = "task:candidates:"
	statusTTL           = 10 * time.Minute
	candidatesTTL       = 24 * time.Hour
)

type StatusCache struct {
	cache *database.Cache
}

func NewStatusCache(cache *database.Cache) *StatusCache {
	return &StatusCache{cache: cache}
}

func (sc *StatusCache) Get(ctx context.Context, productID string) (*models.TaskStatus, error) {
	data, err := sc.cache.Get(ctx, statusKeyPrefix+productID)
	if err != nil {
		return nil, err
	}

	status := models.TaskStatus(data)
	return &status, nil
}

func (sc *StatusCache) Set(ctx context.Context, productID string, status models.TaskStatus) error {
	return sc.cache.Set(ctx, statusKeyPrefix+productID, string(status), statusTTL)
}

func (sc *StatusCache) Delete(ctx context.Context, productID string) error {
	return sc.cache.Del(ctx, statusKeyPrefix+productID)
}

// Candidates returns the structured candidate records the acquisition
// pipeline published for a task. A cache miss means acquisition has not
// finished yet (or gathered nothing), which callers treat as an empty set.
func (sc *StatusCache) Candidates(ctx context.Context, productID string) ([]models.Candidate, error) {
	data, err := sc.cache.Get(ctx, candidatesKeyPrefix+productID)
	if err != nil {
		return nil, err
	}

	var candidates []models.Candidate
	if err := json.Unmarshal([]byte(data), &candidates); err != nil {
		return nil, fmt.Errorf("decode candidates for %s: %w", productID, err)
	}

	return candidates, nil
}

func (sc *StatusCache) DeleteCandidates(ctx context.Context, productID string) error {
	return sc.cache.Del(ctx, candidatesKeyPrefix+productID)
}
