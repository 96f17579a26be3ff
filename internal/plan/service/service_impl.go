package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/prompthive/costlens/internal/cache"
	"github.com/prompthive/costlens/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Cache cache.PlanCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	cache cache.PlanCache
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		genID: p.GenID,
		repo:  p.Repo,
		cache: p.Cache,
	}
}

func (s *Service) GetByType(ctx context.Context, planType domain.PlanType) (*domain.Plan, error) {
	if s.cache != nil {
		if plan, ok := s.cache.Get(ctx, planType); ok {
			return plan, nil
		}
	}

	plan, err := s.repo.FindByType(ctx, s.db, planType)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrNotFound
	}

	if s.cache != nil {
		s.cache.Set(ctx, plan)
	}
	return plan, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Response, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, toResponse(&item))
	}
	return resp, nil
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.Response, error) {
	planType, err := domain.ParsePlanType(strings.TrimSpace(req.Type))
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.MonthlyCredits < 0 || req.CreditCap < 0 {
		return nil, domain.ErrInvalidCredits
	}

	period := strings.ToLower(strings.TrimSpace(req.BillingPeriod))
	if period == "" {
		period = "monthly"
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	limits := datatypes.JSONMap{}
	for feature, limit := range req.Limits {
		limits[feature] = limit
	}

	now := time.Now().UTC()
	record := &domain.Plan{
		ID:              s.genID.Generate(),
		Type:            planType,
		Name:            name,
		PriceCents:      req.PriceCents,
		BillingPeriod:   period,
		MonthlyCredits:  req.MonthlyCredits,
		CreditCap:       req.CreditCap,
		SpendLimitCents: req.SpendLimitCents,
		Features:        pq.StringArray(req.Features),
		Limits:          limits,
		StripePriceID:   strings.TrimSpace(req.StripePriceID),
		Active:          active,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Save(ctx, s.db, record); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, planType)
	}

	s.log.Info("plan upserted",
		zap.String("plan_type", string(planType)),
		zap.Int64("monthly_credits", record.MonthlyCredits),
	)

	resp := toResponse(record)
	return &resp, nil
}

func toResponse(plan *domain.Plan) domain.Response {
	limits := make(map[string]int64, len(plan.Limits))
	for feature := range plan.Limits {
		limits[feature] = plan.Limit(feature)
	}
	return domain.Response{
		ID:              plan.ID.String(),
		Type:            plan.Type,
		Name:            plan.Name,
		PriceCents:      plan.PriceCents,
		BillingPeriod:   plan.BillingPeriod,
		MonthlyCredits:  plan.MonthlyCredits,
		CreditCap:       plan.CreditCap,
		SpendLimitCents: plan.SpendLimitCents,
		Features:        append([]string(nil), plan.Features...),
		Limits:          limits,
		StripePriceID:   plan.StripePriceID,
		Active:          plan.Active,
		CreatedAt:       plan.CreatedAt,
		UpdatedAt:       plan.UpdatedAt,
	}
}
