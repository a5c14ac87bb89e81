package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/procureflow/backend/internal/database"
	"github.com/procureflow/backend/internal/rules"
)

const activeRuleSetPrefix = "ruleset:active:"

// RuleSetCache caches the resolved active rule set per (tenant, country) in
// Redis. Lifecycle operations invalidate the entry so evaluations never see
// a stale default after publish, archive or default reassignment.
type RuleSetCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRuleSetCache creates a new rule set cache
func NewRuleSetCache(client *redis.Client, ttl time.Duration) *RuleSetCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RuleSetCache{client: client, ttl: ttl}
}

func cacheKey(tenantID *uuid.UUID, country string) string {
	tenant := "global"
	if tenantID != nil {
		tenant = tenantID.String()
	}
	return fmt.Sprintf("%s%s:%s", activeRuleSetPrefix, tenant, country)
}

// GetActive returns the cached active rule set, or (nil, nil) on a miss
func (c *RuleSetCache) GetActive(ctx context.Context, tenantID *uuid.UUID, country string) (*database.RuleSet, error) {
	data, err := c.client.Get(ctx, cacheKey(tenantID, country)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rule set cache: %w", err)
	}

	var ruleSet database.RuleSet
	if err := json.Unmarshal(data, &ruleSet); err != nil {
		return nil, fmt.Errorf("failed to decode cached rule set: %w", err)
	}
	return &ruleSet, nil
}

// SetActive caches the resolved active rule set
func (c *RuleSetCache) SetActive(ctx context.Context, tenantID *uuid.UUID, country string, ruleSet *database.RuleSet) error {
	data, err := json.Marshal(ruleSet)
	if err != nil {
		return fmt.Errorf("failed to encode rule set for cache: %w", err)
	}
	return c.client.Set(ctx, cacheKey(tenantID, country), data, c.ttl).Err()
}

// Invalidate drops the cached entry for a (tenant, country) pair
func (c *RuleSetCache) Invalidate(ctx context.Context, tenantID *uuid.UUID, country string) error {
	return c.client.Del(ctx, cacheKey(tenantID, country)).Err()
}

// InvalidateCountry drops every tenant's cached entry for a country. Shared
// sets resolve as fallbacks for any tenant, so they can sit under any tenant
// key; the GLOBAL baseline can additionally back any requested country, so
// changing it clears the whole entry space.
func (c *RuleSetCache) InvalidateCountry(ctx context.Context, country string) error {
	pattern := activeRuleSetPrefix + "*:" + country
	if country == rules.CountryGlobal {
		pattern = activeRuleSetPrefix + "*"
	}

	keys, err := c.client.Keys(ctx, pattern).Result()
	if err != nil {
		return fmt.Errorf("failed to scan rule set cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
