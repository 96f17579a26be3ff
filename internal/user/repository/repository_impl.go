package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/prompthive/costlens/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Take(&u).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *repo) FindByStripeCustomer(ctx context.Context, db *gorm.DB, customerID string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("stripe_customer_id = ?", customerID).
		Take(&u).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, user *domain.User) error {
	if user == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"name":               user.Name,
			"plan_type":          user.PlanType,
			"credit_cap":         user.CreditCap,
			"status":             user.Status,
			"stripe_customer_id": user.StripeCustomerID,
			"updated_at":         user.UpdatedAt,
		}).Error
}
