// Package scheduler runs the periodic maintenance jobs: monthly credit
// resets, subscription expiry, and ledger reconciliation.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prompthive/costlens/internal/clock"
	creditdomain "github.com/prompthive/costlens/internal/credit/domain"
	"github.com/prompthive/costlens/internal/ratelimit"
	subdomain "github.com/prompthive/costlens/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler requires db, logger, clock, and services")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Credits creditdomain.Service
	Subs    subdomain.Service
	Locker  *ratelimit.Locker `optional:"true"`
	Config  Config            `optional:"true"`
}

type Scheduler struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	credits creditdomain.Service
	subs    subdomain.Service
	locker  *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Credits == nil || p.Subs == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:      p.DB,
		log:     p.Log.Named("scheduler"),
		cfg:     p.Config.withDefaults(),
		clock:   p.Clock,
		credits: p.Credits,
		subs:    p.Subs,
		locker:  p.Locker,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	jobs := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"reset_monthly_credits", s.ResetMonthlyCreditsJob},
		{"expire_subscriptions", s.ExpireSubscriptionsJob},
		{"reconcile_ledgers", s.ReconcileLedgersJob},
	}

	var firstErr error
	for _, job := range jobs {
		if !s.isJobEnabled(job.name) {
			continue
		}
		if err := s.runJob(ctx, job.name, job.fn); err != nil && firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return firstErr
}

// runJob wraps a job with a timeout and, when redis is available, a
// lease so only one instance works a given tick.
func (s *Scheduler) runJob(parent context.Context, name string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, "jobs:"+name, s.cfg.LockTTL)
		if err != nil {
			s.log.Warn("job lock unavailable, running anyway",
				zap.String("job", name),
				zap.Error(err),
			)
		} else if !ok {
			return nil
		} else {
			defer func() {
				_ = s.locker.Release(context.WithoutCancel(ctx), "jobs:"+name, token)
			}()
		}
	}

	start := s.clock.Now()
	err := fn(ctx)
	log := s.log.With(
		zap.String("job", name),
		zap.Duration("elapsed", s.clock.Now().Sub(start)),
	)
	if err != nil {
		log.Error("job failed", zap.Error(err))
		return err
	}
	log.Debug("job finished")
	return nil
}

func (s *Scheduler) isJobEnabled(name string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, name) {
			return true
		}
	}
	return false
}

// ResetMonthlyCreditsJob finds accounts whose billing anniversary has
// passed and applies their monthly allotment. The reset itself is
// guarded, so overlapping runs cannot double-grant.
func (s *Scheduler) ResetMonthlyCreditsJob(ctx context.Context) error {
	now := s.clock.Now()
	due, err := s.fetchUsersDueForReset(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	reset := 0
	for _, userID := range due {
		applied, err := s.credits.ResetMonthlyCredits(ctx, userID, now)
		if err != nil {
			s.log.Error("monthly reset failed",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
			continue
		}
		if applied {
			reset++
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if reset > 0 {
		s.log.Info("monthly credits reset", zap.Int("users", reset))
	}
	return nil
}

func (s *Scheduler) ExpireSubscriptionsJob(ctx context.Context) error {
	expired, err := s.subs.ExpireDue(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	if expired > 0 {
		s.log.Info("subscriptions expired", zap.Int("count", expired))
	}
	return nil
}

// ReconcileLedgersJob recomputes ledger sums for recently active
// accounts and reports drift. It never repairs balances on its own.
func (s *Scheduler) ReconcileLedgersJob(ctx context.Context) error {
	users, err := s.fetchRecentlyActiveUsers(ctx, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	drifted := 0
	for _, userID := range users {
		report, err := s.credits.Reconcile(ctx, userID)
		if err != nil {
			s.log.Error("reconcile failed",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
			continue
		}
		if report.Drift != 0 {
			drifted++
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if drifted > 0 {
		s.log.Warn("ledger drift found", zap.Int("users", drifted))
	}
	return nil
}

func (s *Scheduler) fetchUsersDueForReset(ctx context.Context, now time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM users
		 WHERE status = 'ACTIVE' AND last_credit_reset <= ?
		 ORDER BY last_credit_reset ASC
		 LIMIT ?`,
		now.AddDate(0, -1, 0),
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Scheduler) fetchRecentlyActiveUsers(ctx context.Context, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM users
		 WHERE status <> 'DELETED'
		 ORDER BY updated_at DESC
		 LIMIT ?`,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
