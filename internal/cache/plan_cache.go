// Package cache stores hot-path plan lookups in redis.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPlanTTL = 5 * time.Minute

// PlanCache caches plan catalog entries by plan type.
type PlanCache interface {
	Get(ctx context.Context, planType plandomain.PlanType) (*plandomain.Plan, bool)
	Set(ctx context.Context, plan *plandomain.Plan)
	Invalidate(ctx context.Context, planType plandomain.PlanType)
}

type planCache struct {
	client *redis.Client
	log    *zap.Logger
	ttl    time.Duration
}

// NewPlanCache returns a redis-backed plan cache. A nil client disables
// caching; every lookup is a miss.
func NewPlanCache(client *redis.Client, log *zap.Logger) PlanCache {
	return &planCache{
		client: client,
		log:    log.Named("cache.plan"),
		ttl:    defaultPlanTTL,
	}
}

func (c *planCache) Get(ctx context.Context, planType plandomain.PlanType) (*plandomain.Plan, bool) {
	if c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, planKey(planType)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("plan cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var plan plandomain.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, false
	}
	return &plan, true
}

func (c *planCache) Set(ctx context.Context, plan *plandomain.Plan) {
	if c.client == nil || plan == nil {
		return
	}
	raw, err := json.Marshal(plan)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, planKey(plan.Type), raw, c.ttl).Err(); err != nil {
		c.log.Debug("plan cache write failed", zap.Error(err))
	}
}

func (c *planCache) Invalidate(ctx context.Context, planType plandomain.PlanType) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, planKey(planType)).Err(); err != nil {
		c.log.Debug("plan cache invalidate failed", zap.Error(err))
	}
}

func planKey(planType plandomain.PlanType) string {
	return "plan:" + strings.ToLower(string(planType))
}
