package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/prompthive/costlens/internal/clock"
	creditdomain "github.com/prompthive/costlens/internal/credit/domain"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	"github.com/prompthive/costlens/internal/user/domain"
	pkgdb "github.com/prompthive/costlens/pkg/db"
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
	Plans   plandomain.Service
	Credits creditdomain.Service
}

type userService struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	plans   plandomain.Service
	credits creditdomain.Service
}

func New(p Params) domain.Service {
	return &userService{
		db:      p.DB,
		log:     p.Log.Named("user.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		plans:   p.Plans,
		credits: p.Credits,
	}
}

// Create registers a new account on the free plan. The initial monthly
// allotment is granted through the credit ledger so the balance stays
// reconcilable from day one.
func (s *userService) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	plan, err := s.plans.GetByType(ctx, plandomain.PlanFree)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:              s.genID.Generate(),
		Email:           email,
		Name:            name,
		PlanType:        plandomain.PlanFree,
		CreditCap:       plan.CreditCap,
		LastCreditReset: now,
		Status:          domain.UserStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, s.db, user); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}

	if plan.MonthlyCredits > 0 {
		if _, err := s.credits.AddCredits(ctx, user.ID, plan.MonthlyCredits, creditdomain.EntryTypeMonthlyRenewal, "initial monthly credits"); err != nil {
			return nil, err
		}
		user.MonthlyCredits = plan.MonthlyCredits
	}

	s.log.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("plan_type", string(user.PlanType)),
	)
	return toResponse(user), nil
}

func (s *userService) GetByID(ctx context.Context, userID snowflake.ID) (*domain.User, error) {
	user, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *userService) GetByStripeCustomer(ctx context.Context, customerID string) (*domain.User, error) {
	if customerID == "" {
		return nil, domain.ErrNotFound
	}
	user, err := s.repo.FindByStripeCustomer(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

// ChangePlan moves the account onto a different plan tier. The monthly
// bucket is not touched here; grants and resets go through the credit
// ledger so every balance change stays accounted for.
func (s *userService) ChangePlan(ctx context.Context, userID snowflake.ID, planType plandomain.PlanType) error {
	plan, err := s.plans.GetByType(ctx, planType)
	if err != nil {
		return err
	}

	user, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrNotFound
	}

	user.PlanType = plan.Type
	user.CreditCap = plan.CreditCap
	user.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, user); err != nil {
		return err
	}

	s.log.Info("plan changed",
		zap.String("user_id", userID.String()),
		zap.String("plan_type", string(planType)),
	)
	return nil
}

func (s *userService) LinkStripeCustomer(ctx context.Context, userID snowflake.ID, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil
	}

	user, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrNotFound
	}
	if user.StripeCustomerID == customerID {
		return nil
	}

	user.StripeCustomerID = customerID
	user.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, s.db, user)
}

func (s *userService) Suspend(ctx context.Context, userID snowflake.ID) error {
	user, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrNotFound
	}
	if user.Status == domain.UserStatusSuspended {
		return nil
	}

	user.Status = domain.UserStatusSuspended
	user.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, user); err != nil {
		return err
	}

	s.log.Warn("user suspended", zap.String("user_id", userID.String()))
	return nil
}

func toResponse(u *domain.User) *domain.Response {
	return &domain.Response{
		ID:               u.ID.String(),
		Email:            u.Email,
		Name:             u.Name,
		PlanType:         u.PlanType,
		MonthlyCredits:   u.MonthlyCredits,
		PurchasedCredits: u.PurchasedCredits,
		CreditCap:        u.CreditCap,
		Status:           u.Status,
		CreatedAt:        u.CreatedAt,
	}
}
