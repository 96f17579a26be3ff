// Package seed bootstraps the plan catalog so a fresh install has a
// usable FREE/PRO/ENTERPRISE tier set.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EnsureDefaultPlans inserts the default catalog. Existing plans are
// left untouched so administrative edits survive restarts.
func EnsureDefaultPlans(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range defaultPlans(node) {
			var count int64
			if err := tx.Model(&plandomain.Plan{}).
				Where("plan_type = ?", plan.Type).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			if err := tx.Create(&plan).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func defaultPlans(node *snowflake.Node) []plandomain.Plan {
	now := time.Now().UTC()

	return []plandomain.Plan{
		{
			ID:              node.Generate(),
			Type:            plandomain.PlanFree,
			Name:            "Free",
			PriceCents:      0,
			BillingPeriod:   "monthly",
			MonthlyCredits:  100,
			CreditCap:       500,
			SpendLimitCents: 100,
			Features:        []string{},
			Limits: datatypes.JSONMap{
				plandomain.FeaturePrompts:          int64(25),
				plandomain.FeaturePlaygroundRuns:   int64(50),
				plandomain.FeatureTestRuns:         int64(20),
				plandomain.FeatureAPIRequests:      int64(60),
				plandomain.FeatureTeamMembers:      int64(1),
				plandomain.FeatureVersionRetention: int64(7),
			},
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:              node.Generate(),
			Type:            plandomain.PlanPro,
			Name:            "Pro",
			PriceCents:      2900,
			BillingPeriod:   "monthly",
			MonthlyCredits:  2000,
			CreditCap:       10000,
			SpendLimitCents: 5000,
			Features: []string{
				plandomain.FlagVersionControl,
				plandomain.FlagAnalyticsExport,
			},
			Limits: datatypes.JSONMap{
				plandomain.FeaturePrompts:          int64(500),
				plandomain.FeaturePlaygroundRuns:   int64(1000),
				plandomain.FeatureTestRuns:         int64(500),
				plandomain.FeatureAPIRequests:      int64(600),
				plandomain.FeatureTeamMembers:      int64(5),
				plandomain.FeatureVersionRetention: int64(90),
			},
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:              node.Generate(),
			Type:            plandomain.PlanEnterprise,
			Name:            "Enterprise",
			PriceCents:      19900,
			BillingPeriod:   "monthly",
			MonthlyCredits:  20000,
			CreditCap:       0,
			SpendLimitCents: plandomain.LimitUnlimited,
			Features: []string{
				plandomain.FlagVersionControl,
				plandomain.FlagAnalyticsExport,
				plandomain.FlagPrioritySupport,
				plandomain.FlagCustomModels,
			},
			Limits: datatypes.JSONMap{
				plandomain.FeaturePrompts:          plandomain.LimitUnlimited,
				plandomain.FeaturePlaygroundRuns:   plandomain.LimitUnlimited,
				plandomain.FeatureTestRuns:         plandomain.LimitUnlimited,
				plandomain.FeatureAPIRequests:      int64(6000),
				plandomain.FeatureTeamMembers:      plandomain.LimitUnlimited,
				plandomain.FeatureVersionRetention: int64(365),
			},
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}
