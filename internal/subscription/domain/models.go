// Package domain contains subscription lifecycle models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
)

// SubscriptionStatus tracks where a paid subscription is in its lifecycle.
type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "ACTIVE"
	StatusPastDue  SubscriptionStatus = "PAST_DUE"
	StatusCanceled SubscriptionStatus = "CANCELED"
	StatusInactive SubscriptionStatus = "INACTIVE"
)

// Subscription is the single paid subscription a user can hold. Free
// accounts have no row here. Status transitions are driven by payment
// provider webhooks; expiry is applied by the scheduler once the paid
// period runs out.
type Subscription struct {
	ID                   snowflake.ID        `gorm:"primaryKey"`
	UserID               snowflake.ID        `gorm:"not null;uniqueIndex:ux_subscriptions_user"`
	PlanType             plandomain.PlanType `gorm:"column:plan_type;type:text;not null"`
	Status               SubscriptionStatus  `gorm:"type:text;not null"`
	StripeSubscriptionID string              `gorm:"column:stripe_subscription_id;type:text;index:idx_subscriptions_stripe"`
	CurrentPeriodEnd     time.Time           `gorm:"column:current_period_end;not null"`
	CancelAtPeriodEnd    bool                `gorm:"column:cancel_at_period_end;not null;default:false"`
	CreatedAt            time.Time           `gorm:"not null"`
	UpdatedAt            time.Time           `gorm:"not null"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// InGoodStanding reports whether the subscription still entitles the
// user to its plan as of now. Past-due keeps entitlements until the
// period actually ends.
func (s Subscription) InGoodStanding(now time.Time) bool {
	switch s.Status {
	case StatusActive, StatusPastDue:
		return true
	case StatusCanceled:
		return now.Before(s.CurrentPeriodEnd)
	default:
		return false
	}
}
