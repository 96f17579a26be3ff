package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prompthive/costlens/internal/clock"
	creditdomain "github.com/prompthive/costlens/internal/credit/domain"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	"github.com/prompthive/costlens/internal/subscription/domain"
	userdomain "github.com/prompthive/costlens/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Users   userdomain.Service
	Plans   plandomain.Service
	Credits creditdomain.Service
}

type subscriptionService struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	users   userdomain.Service
	plans   plandomain.Service
	credits creditdomain.Service
}

func New(p Params) domain.Service {
	return &subscriptionService{
		db:      p.DB,
		log:     p.Log.Named("subscription.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		users:   p.Users,
		plans:   p.Plans,
		credits: p.Credits,
	}
}

func (s *subscriptionService) Activate(ctx context.Context, userID snowflake.ID, planType plandomain.PlanType, providerSubID string, periodEnd time.Time) error {
	if planType == plandomain.PlanFree {
		return domain.ErrInvalidPlan
	}
	plan, err := s.plans.GetByType(ctx, planType)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	// Webhook redelivery: the same checkout settling twice must not
	// grant twice.
	existing, err := s.repo.FindByUser(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if existing != nil &&
		existing.StripeSubscriptionID == providerSubID &&
		existing.Status == domain.StatusActive &&
		user.PlanType == planType {
		return nil
	}

	if err := s.users.ChangePlan(ctx, userID, planType); err != nil {
		return err
	}

	// Top the monthly bucket up to the new allotment. The regular reset
	// keeps the anchor date, so only the difference is granted here.
	if topUp := plan.MonthlyCredits - user.MonthlyCredits; topUp > 0 {
		if _, err := s.credits.AddCredits(ctx, userID, topUp, creditdomain.EntryTypeMonthlyRenewal, "plan upgrade allotment"); err != nil {
			return err
		}
	}

	now := s.clock.Now()
	sub := &domain.Subscription{
		ID:                   s.genID.Generate(),
		UserID:               userID,
		PlanType:             planType,
		Status:               domain.StatusActive,
		StripeSubscriptionID: providerSubID,
		CurrentPeriodEnd:     periodEnd,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Upsert(ctx, s.db, sub); err != nil {
		return err
	}

	s.log.Info("subscription activated",
		zap.String("user_id", userID.String()),
		zap.String("plan_type", string(planType)),
		zap.String("provider_subscription_id", providerSubID),
		zap.Time("current_period_end", periodEnd),
	)
	return nil
}

func (s *subscriptionService) Renew(ctx context.Context, providerSubID string, periodEnd time.Time) error {
	sub, err := s.repo.FindByProviderID(ctx, s.db, providerSubID)
	if err != nil {
		return err
	}
	if sub == nil {
		return domain.ErrNotFound
	}
	if sub.Status == domain.StatusActive && !periodEnd.After(sub.CurrentPeriodEnd) {
		return nil
	}

	sub.Status = domain.StatusActive
	if periodEnd.After(sub.CurrentPeriodEnd) {
		sub.CurrentPeriodEnd = periodEnd
	}
	sub.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, sub); err != nil {
		return err
	}

	s.log.Info("subscription renewed",
		zap.String("user_id", sub.UserID.String()),
		zap.Time("current_period_end", sub.CurrentPeriodEnd),
	)
	return nil
}

func (s *subscriptionService) MarkPastDue(ctx context.Context, providerSubID string) error {
	sub, err := s.repo.FindByProviderID(ctx, s.db, providerSubID)
	if err != nil {
		return err
	}
	if sub == nil {
		return domain.ErrNotFound
	}
	if sub.Status == domain.StatusPastDue {
		return nil
	}

	sub.Status = domain.StatusPastDue
	sub.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, sub); err != nil {
		return err
	}

	s.log.Warn("subscription past due",
		zap.String("user_id", sub.UserID.String()),
		zap.String("provider_subscription_id", providerSubID),
	)
	return nil
}

func (s *subscriptionService) Cancel(ctx context.Context, providerSubID string) error {
	sub, err := s.repo.FindByProviderID(ctx, s.db, providerSubID)
	if err != nil {
		return err
	}
	if sub == nil {
		return domain.ErrNotFound
	}
	if sub.Status == domain.StatusCanceled || sub.Status == domain.StatusInactive {
		return nil
	}

	sub.Status = domain.StatusCanceled
	sub.CancelAtPeriodEnd = true
	sub.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, sub); err != nil {
		return err
	}

	s.log.Info("subscription canceled",
		zap.String("user_id", sub.UserID.String()),
		zap.Time("lapses_at", sub.CurrentPeriodEnd),
	)
	return nil
}

func (s *subscriptionService) CancelByUser(ctx context.Context, userID snowflake.ID) error {
	sub, err := s.repo.FindByUser(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if sub == nil {
		return domain.ErrNotFound
	}
	return s.Cancel(ctx, sub.StripeSubscriptionID)
}

func (s *subscriptionService) GetByUser(ctx context.Context, userID snowflake.ID) (*domain.Subscription, error) {
	return s.repo.FindByUser(ctx, s.db, userID)
}

func (s *subscriptionService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	subs, err := s.repo.ListExpired(ctx, s.db, now, 100)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, sub := range subs {
		if err := s.users.ChangePlan(ctx, sub.UserID, plandomain.PlanFree); err != nil {
			s.log.Error("downgrade on expiry failed",
				zap.String("user_id", sub.UserID.String()),
				zap.Error(err),
			)
			continue
		}

		sub.Status = domain.StatusInactive
		sub.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, &sub); err != nil {
			s.log.Error("expire update failed",
				zap.String("user_id", sub.UserID.String()),
				zap.Error(err),
			)
			continue
		}
		expired++
	}
	return expired, nil
}
