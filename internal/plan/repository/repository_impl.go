package repository

import (
	"context"

	"github.com/prompthive/costlens/internal/plan/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByType(ctx context.Context, db *gorm.DB, planType domain.PlanType) (*domain.Plan, error) {
	var p domain.Plan
	err := db.WithContext(ctx).
		Model(&domain.Plan{}).
		Where("plan_type = ?", planType).
		Take(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Plan, error) {
	var items []domain.Plan
	err := db.WithContext(ctx).
		Model(&domain.Plan{}).
		Order("price_cents ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	if plan == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "plan_type"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "price_cents", "billing_period", "monthly_credits",
				"credit_cap", "spend_limit_cents", "features", "limits",
				"stripe_price_id", "active", "updated_at",
			}),
		}).
		Create(plan).Error
}
