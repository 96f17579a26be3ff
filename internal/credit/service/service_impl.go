package service

import (
	"context"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prompthive/costlens/internal/clock"
	"github.com/prompthive/costlens/internal/config"
	"github.com/prompthive/costlens/internal/credit/domain"
	obsmetrics "github.com/prompthive/costlens/internal/observability/metrics"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	userdomain "github.com/prompthive/costlens/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// debitRetries bounds the optimistic retry loop when a concurrent spend
// invalidates the bucket split we computed.
const debitRetries = 3

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Plans   plandomain.Service
	Rates   *config.RateCardHolder
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type creditService struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	plans   plandomain.Service
	rates   *config.RateCardHolder
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &creditService{
		db:      p.DB,
		log:     p.Log.Named("credit.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		plans:   p.Plans,
		rates:   p.Rates,
		metrics: p.Metrics,
	}
}

func (s *creditService) GetCreditUsage(ctx context.Context, userID snowflake.ID) (*domain.Usage, error) {
	user, err := s.repo.FindUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	used, err := s.repo.SumDebitsSince(ctx, s.db, userID, user.LastCreditReset)
	if err != nil {
		return nil, err
	}

	// Total is what the user had available this period: what remains now
	// plus what they already spent.
	total := user.TotalCredits() + used
	pct := 0.0
	if total > 0 {
		pct = float64(used) / float64(total) * 100
	}

	return &domain.Usage{
		Used:          used,
		Total:         total,
		Percentage:    pct,
		NextResetDate: user.LastCreditReset.AddDate(0, 1, 0),
	}, nil
}

func (s *creditService) AddCredits(ctx context.Context, userID snowflake.ID, amount int64, entryType domain.EntryType, description string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	switch entryType {
	case domain.EntryTypePurchase, domain.EntryTypeMonthlyRenewal, domain.EntryTypeBonus, domain.EntryTypeRefund:
	default:
		// USAGE entries only come out of DebitCredits.
		return 0, domain.ErrInvalidEntryType
	}

	now := s.clock.Now()
	var total int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.GrantCredits(ctx, tx, userID, entryType.GrantBucket(), amount, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrUserNotFound
		}

		user, err := s.repo.FindUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrUserNotFound
		}
		total = user.TotalCredits()

		return s.repo.AppendEntry(ctx, tx, &domain.CreditEntry{
			ID:           s.genID.Generate(),
			UserID:       userID,
			Amount:       amount,
			Type:         entryType,
			Description:  description,
			BalanceAfter: total,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return 0, err
	}

	s.metrics.RecordCreditGrant(string(entryType))
	s.log.Info("credits granted",
		zap.String("user_id", userID.String()),
		zap.Int64("amount", amount),
		zap.String("entry_type", string(entryType)),
		zap.Int64("balance_after", total),
	)
	return total, nil
}

func (s *creditService) DebitCredits(ctx context.Context, userID snowflake.ID, amount int64, description string) (*domain.DebitResult, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	now := s.clock.Now()

	for attempt := 0; attempt < debitRetries; attempt++ {
		user, err := s.repo.FindUser(ctx, s.db, userID)
		if err != nil {
			return nil, err
		}
		if user == nil || user.Status == userdomain.UserStatusDeleted {
			return nil, domain.ErrUserNotFound
		}

		total := user.TotalCredits()
		if total < amount {
			s.metrics.RecordCreditDenial()
			return nil, &domain.InsufficientCreditsError{
				CurrentCredits:  total,
				RequiredCredits: amount,
				MissingCredits:  amount - total,
			}
		}

		fromMonthly := amount
		if user.MonthlyCredits < fromMonthly {
			fromMonthly = user.MonthlyCredits
		}
		fromPurchased := amount - fromMonthly

		var applied bool
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ok, err := s.repo.DebitBuckets(ctx, tx, userID, fromMonthly, fromPurchased, now)
			if err != nil {
				return err
			}
			if !ok {
				// Guard failed: another spend landed between our read and
				// this update. Roll back and recompute the split.
				return nil
			}
			applied = true
			return s.repo.AppendEntry(ctx, tx, &domain.CreditEntry{
				ID:           s.genID.Generate(),
				UserID:       userID,
				Amount:       -amount,
				Type:         domain.EntryTypeUsage,
				Description:  description,
				BalanceAfter: total - amount,
				CreatedAt:    now,
			})
		})
		if err != nil {
			return nil, err
		}
		if !applied {
			continue
		}

		s.metrics.RecordCreditDebit()
		s.log.Info("credits debited",
			zap.String("user_id", userID.String()),
			zap.Int64("amount", amount),
			zap.Int64("from_monthly", fromMonthly),
			zap.Int64("from_purchased", fromPurchased),
			zap.Int64("remaining", total-amount),
		)
		return &domain.DebitResult{
			Remaining:     total - amount,
			FromMonthly:   fromMonthly,
			FromPurchased: fromPurchased,
		}, nil
	}

	return nil, domain.ErrConcurrentUpdate
}

func (s *creditService) CalculateTokenCost(inputTokens, outputTokens int64, model string) int64 {
	if inputTokens <= 0 && outputTokens <= 0 {
		return 0
	}
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}

	rate := s.rates.Get().Rate(model)
	cost := float64(inputTokens)/1000*rate.InputPer1K + float64(outputTokens)/1000*rate.OutputPer1K
	return int64(math.Ceil(cost))
}

func (s *creditService) ResetMonthlyCredits(ctx context.Context, userID snowflake.ID, now time.Time) (bool, error) {
	user, err := s.repo.FindUser(ctx, s.db, userID)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, domain.ErrUserNotFound
	}
	if user.Status != userdomain.UserStatusActive {
		return false, nil
	}
	if now.Before(user.LastCreditReset.AddDate(0, 1, 0)) {
		return false, nil
	}

	plan, err := s.plans.GetByType(ctx, user.PlanType)
	if err != nil {
		return false, err
	}

	newMonthly := plan.MonthlyCredits
	if user.CreditCap > 0 {
		// Purchased credits count against the cap; never clip below zero.
		room := user.CreditCap - user.PurchasedCredits
		if room < 0 {
			room = 0
		}
		if newMonthly > room {
			newMonthly = room
		}
	}

	delta := newMonthly - user.MonthlyCredits
	var applied bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.ApplyMonthlyReset(ctx, tx, userID, newMonthly, user.LastCreditReset, now)
		if err != nil {
			return err
		}
		if !ok {
			// Another worker already reset this period.
			return nil
		}
		applied = true
		if delta == 0 {
			return nil
		}
		return s.repo.AppendEntry(ctx, tx, &domain.CreditEntry{
			ID:           s.genID.Generate(),
			UserID:       userID,
			Amount:       delta,
			Type:         domain.EntryTypeMonthlyRenewal,
			Description:  "monthly credit reset",
			BalanceAfter: newMonthly + user.PurchasedCredits,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	s.metrics.RecordMonthlyReset()
	s.log.Info("monthly credits reset",
		zap.String("user_id", userID.String()),
		zap.Int64("monthly_credits", newMonthly),
		zap.Int64("delta", delta),
	)
	return true, nil
}

func (s *creditService) History(ctx context.Context, userID snowflake.ID, limit int) ([]domain.CreditEntry, error) {
	return s.repo.ListEntries(ctx, s.db, userID, limit)
}

func (s *creditService) SpentSince(ctx context.Context, userID snowflake.ID, since time.Time) (int64, error) {
	return s.repo.SumDebitsSince(ctx, s.db, userID, since)
}

func (s *creditService) Reconcile(ctx context.Context, userID snowflake.ID) (*domain.ReconcileReport, error) {
	user, err := s.repo.FindUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	ledger, err := s.repo.SumEntries(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	stored := user.TotalCredits()
	report := &domain.ReconcileReport{
		UserID:        userID.String(),
		LedgerBalance: ledger,
		StoredBalance: stored,
		Drift:         stored - ledger,
	}
	if report.Drift != 0 {
		s.metrics.RecordLedgerDrift()
		s.log.Warn("ledger drift detected",
			zap.String("user_id", userID.String()),
			zap.Int64("ledger_balance", ledger),
			zap.Int64("stored_balance", stored),
			zap.Int64("drift", report.Drift),
		)
	}
	return report, nil
}
