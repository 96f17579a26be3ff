package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prompthive/costlens/internal/clock"
	"github.com/prompthive/costlens/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type usageService struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &usageService{
		db:    p.DB,
		log:   p.Log.Named("usage.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *usageService) Track(ctx context.Context, userID snowflake.ID, feature string, delta int64) error {
	feature = strings.TrimSpace(feature)
	if feature == "" {
		return domain.ErrInvalidFeature
	}
	if delta <= 0 {
		return domain.ErrInvalidDelta
	}

	now := s.clock.Now()
	return s.repo.Increment(ctx, s.db, &domain.UsageMetric{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Feature:   feature,
		Period:    domain.MonthPeriod(now),
		Count:     delta,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *usageService) CurrentCount(ctx context.Context, userID snowflake.ID, feature string, now time.Time) (int64, error) {
	feature = strings.TrimSpace(feature)
	if feature == "" {
		return 0, domain.ErrInvalidFeature
	}
	return s.repo.Count(ctx, s.db, userID, feature, domain.MonthPeriod(now))
}

func (s *usageService) Summary(ctx context.Context, userID snowflake.ID, now time.Time) (map[string]int64, error) {
	metrics, err := s.repo.ListByPeriod(ctx, s.db, userID, domain.MonthPeriod(now))
	if err != nil {
		return nil, err
	}

	summary := make(map[string]int64, len(metrics))
	for _, m := range metrics {
		summary[m.Feature] += m.Count
	}
	return summary, nil
}
