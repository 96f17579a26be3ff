package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/prompthive/costlens/internal/clock"
	"github.com/prompthive/costlens/internal/config"
	creditdomain "github.com/prompthive/costlens/internal/credit/domain"
	"github.com/prompthive/costlens/internal/entitlement/domain"
	obsmetrics "github.com/prompthive/costlens/internal/observability/metrics"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	usagedomain "github.com/prompthive/costlens/internal/usage/domain"
	userdomain "github.com/prompthive/costlens/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Clock   clock.Clock
	Users   userdomain.Service
	Plans   plandomain.Service
	Usage   usagedomain.Service
	Credits creditdomain.Service
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type entitlementService struct {
	cfg     config.Config
	log     *zap.Logger
	clock   clock.Clock
	users   userdomain.Service
	plans   plandomain.Service
	usage   usagedomain.Service
	credits creditdomain.Service
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &entitlementService{
		cfg:     p.Cfg,
		log:     p.Log.Named("entitlement.service"),
		clock:   p.Clock,
		users:   p.Users,
		plans:   p.Plans,
		usage:   p.Usage,
		credits: p.Credits,
		metrics: p.Metrics,
	}
}

func (s *entitlementService) CheckFeature(ctx context.Context, userID snowflake.ID, feature string) (*domain.Decision, error) {
	_, plan, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit := plan.Limit(feature)
	used, err := s.usage.CurrentCount(ctx, userID, feature, s.clock.Now())
	if err != nil {
		return nil, err
	}

	decision := &domain.Decision{
		Allowed:   domain.WithinLimit(limit, used),
		Feature:   feature,
		Limit:     limit,
		Used:      used,
		Remaining: domain.Remaining(limit, used),
	}
	if !decision.Allowed {
		if limit == plandomain.LimitDisabled {
			decision.Reason = domain.ReasonFeatureDisabled
		} else {
			decision.Reason = domain.ReasonLimitReached
		}
		s.metrics.RecordEntitlementDenial(feature)
		s.log.Info("entitlement denied",
			zap.String("user_id", userID.String()),
			zap.String("feature", feature),
			zap.Int64("limit", limit),
			zap.Int64("used", used),
		)
	}
	return decision, nil
}

func (s *entitlementService) CheckFlag(ctx context.Context, userID snowflake.ID, flag string) (*domain.Decision, error) {
	_, plan, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	decision := &domain.Decision{
		Allowed: plan.HasFlag(flag),
		Feature: flag,
	}
	if !decision.Allowed {
		decision.Reason = domain.ReasonFeatureDisabled
		s.metrics.RecordEntitlementDenial(flag)
	}
	return decision, nil
}

func (s *entitlementService) CheckSpendLimit(ctx context.Context, userID snowflake.ID) (*domain.Decision, error) {
	user, plan, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	// A negative ceiling means the plan does not cap spend.
	if plan.SpendLimitCents < 0 {
		return &domain.Decision{
			Allowed:   true,
			Feature:   "ai_spend",
			Limit:     plandomain.LimitUnlimited,
			Remaining: plandomain.LimitUnlimited,
		}, nil
	}

	spent, err := s.credits.SpentSince(ctx, userID, user.LastCreditReset)
	if err != nil {
		return nil, err
	}
	spentCents := spent * int64(s.cfg.CreditPriceCents)

	decision := &domain.Decision{
		Allowed:   spentCents < plan.SpendLimitCents,
		Feature:   "ai_spend",
		Limit:     plan.SpendLimitCents,
		Used:      spentCents,
		Remaining: domain.Remaining(plan.SpendLimitCents, spentCents),
	}
	if plan.SpendLimitCents == 0 {
		decision.Allowed = false
	}
	if !decision.Allowed {
		decision.Reason = domain.ReasonSpendLimitReached
		s.metrics.RecordEntitlementDenial("ai_spend")
		s.log.Info("spend limit reached",
			zap.String("user_id", userID.String()),
			zap.Int64("spent_cents", spentCents),
			zap.Int64("limit_cents", plan.SpendLimitCents),
		)
	}
	return decision, nil
}

func (s *entitlementService) load(ctx context.Context, userID snowflake.ID) (*userdomain.User, *plandomain.Plan, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if err == userdomain.ErrNotFound {
			return nil, nil, domain.ErrUserNotFound
		}
		return nil, nil, err
	}

	plan, err := s.plans.GetByType(ctx, user.PlanType)
	if err != nil {
		return nil, nil, err
	}
	return user, plan, nil
}
