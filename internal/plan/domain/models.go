// Package domain contains the plan catalog models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// PlanType identifies a subscription tier.
type PlanType string

const (
	PlanFree       PlanType = "FREE"
	PlanPro        PlanType = "PRO"
	PlanEnterprise PlanType = "ENTERPRISE"
)

// Feature codes with numeric per-plan limits.
const (
	FeaturePrompts          = "prompts"
	FeaturePlaygroundRuns   = "playground_runs"
	FeatureTestRuns         = "test_runs"
	FeatureAPIRequests      = "api_requests"
	FeatureTeamMembers      = "team_members"
	FeatureVersionRetention = "version_retention_days"
)

// Binary feature flags.
const (
	FlagVersionControl  = "version_control"
	FlagAnalyticsExport = "analytics_export"
	FlagPrioritySupport = "priority_support"
	FlagCustomModels    = "custom_models"
)

// Limit sentinel values. A limit of -1 means unlimited; 0 means the
// feature is disabled for the plan.
const (
	LimitUnlimited int64 = -1
	LimitDisabled  int64 = 0
)

// Plan is a catalog entry for a subscription tier. Immutable at runtime
// except via administrative update.
type Plan struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	Type           PlanType          `gorm:"column:plan_type;type:text;not null;uniqueIndex:ux_plans_type"`
	Name           string            `gorm:"type:text;not null"`
	PriceCents     int64             `gorm:"not null;default:0"`
	BillingPeriod  string            `gorm:"type:text;not null;default:monthly"`
	MonthlyCredits int64             `gorm:"not null;default:0"`
	CreditCap      int64             `gorm:"not null;default:0"`
	SpendLimitCents int64            `gorm:"column:spend_limit_cents;not null;default:-1"`
	Features       pq.StringArray    `gorm:"type:text[]"`
	Limits         datatypes.JSONMap `gorm:"type:jsonb"`
	StripePriceID  string            `gorm:"column:stripe_price_id;type:text"`
	Active         bool              `gorm:"not null;default:true"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

// Limit returns the configured numeric limit for a feature. Features
// absent from the plan's limit map are disabled.
func (p Plan) Limit(feature string) int64 {
	if p.Limits == nil {
		return LimitDisabled
	}
	raw, ok := p.Limits[feature]
	if !ok {
		return LimitDisabled
	}
	switch v := raw.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return LimitDisabled
	}
}

// HasFlag reports whether the plan carries a binary feature flag.
func (p Plan) HasFlag(flag string) bool {
	for _, f := range p.Features {
		if f == flag {
			return true
		}
	}
	return false
}
