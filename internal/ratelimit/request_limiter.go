package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/prompthive/costlens/internal/observability/metrics"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	userdomain "github.com/prompthive/costlens/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RequestLimiter throttles API traffic per user. The allowed rate comes
// from the plan's api_requests limit, read as requests per minute.
type RequestLimiter struct {
	buckets *TokenBucket
	users   userdomain.Service
	plans   plandomain.Service
	metrics *obsmetrics.Metrics
	log     *zap.Logger
}

type RequestLimiterParams struct {
	fx.In

	Buckets *TokenBucket `optional:"true"`
	Users   userdomain.Service
	Plans   plandomain.Service
	Metrics *obsmetrics.Metrics `optional:"true"`
	Log     *zap.Logger
}

func NewRequestLimiter(p RequestLimiterParams) *RequestLimiter {
	return &RequestLimiter{
		buckets: p.Buckets,
		users:   p.Users,
		plans:   p.Plans,
		metrics: p.Metrics,
		log:     p.Log.Named("ratelimit"),
	}
}

// Allow checks whether this user may issue one more request. With no
// redis configured the limiter admits everything.
func (r *RequestLimiter) Allow(ctx context.Context, userID snowflake.ID) (*Result, error) {
	if r.buckets == nil {
		return &Result{Allowed: true}, nil
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	plan, err := r.plans.GetByType(ctx, user.PlanType)
	if err != nil {
		return nil, err
	}

	perMinute := plan.Limit(plandomain.FeatureAPIRequests)
	switch perMinute {
	case plandomain.LimitUnlimited:
		return &Result{Allowed: true}, nil
	case plandomain.LimitDisabled:
		r.metrics.RecordRateLimit(false)
		return &Result{Allowed: false}, nil
	}

	rate := float64(perMinute) / 60
	burst := int(perMinute / 10)
	if burst < 5 {
		burst = 5
	}

	result, err := r.buckets.Allow(ctx, fmt.Sprintf("ratelimit:user:%s", userID), rate, burst)
	if err != nil {
		// Redis trouble must not take the API down with it.
		r.log.Warn("rate limit check failed, admitting request", zap.Error(err))
		return &Result{Allowed: true}, nil
	}

	r.metrics.RecordRateLimit(result.Allowed)
	return result, nil
}
