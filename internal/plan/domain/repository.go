package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByType(ctx context.Context, db *gorm.DB, planType PlanType) (*Plan, error)
	List(ctx context.Context, db *gorm.DB) ([]Plan, error)
	Save(ctx context.Context, db *gorm.DB, plan *Plan) error
}
