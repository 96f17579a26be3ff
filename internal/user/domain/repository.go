package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByStripeCustomer(ctx context.Context, db *gorm.DB, customerID string) (*User, error)
	Update(ctx context.Context, db *gorm.DB, user *User) error
}
