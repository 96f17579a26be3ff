package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
)

// Service applies subscription lifecycle transitions. The webhook layer
// translates provider events into these calls; handlers must stay
// idempotent because providers redeliver.
type Service interface {
	// Activate starts or upgrades a paid subscription after checkout
	// settles. Moves the user onto the plan and tops up the monthly
	// bucket to the new allotment.
	Activate(ctx context.Context, userID snowflake.ID, planType plandomain.PlanType, providerSubID string, periodEnd time.Time) error

	// Renew extends the paid period after an invoice settles.
	Renew(ctx context.Context, providerSubID string, periodEnd time.Time) error

	// MarkPastDue flags a failed renewal. Entitlements survive until the
	// period ends.
	MarkPastDue(ctx context.Context, providerSubID string) error

	// Cancel schedules the subscription to lapse at period end.
	Cancel(ctx context.Context, providerSubID string) error

	// CancelByUser is the self-serve cancellation path. The plan stays
	// active until the paid period ends.
	CancelByUser(ctx context.Context, userID snowflake.ID) error

	// GetByUser returns the user's subscription, nil when none exists.
	GetByUser(ctx context.Context, userID snowflake.ID) (*Subscription, error)

	// ExpireDue downgrades every lapsed subscription whose period ended
	// before now. Returns how many were expired.
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

var (
	ErrNotFound    = errors.New("subscription_not_found")
	ErrInvalidPlan = errors.New("invalid_subscription_plan")
)
