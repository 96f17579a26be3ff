package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
	FindByProviderID(ctx context.Context, db *gorm.DB, providerSubID string) (*Subscription, error)
	Update(ctx context.Context, db *gorm.DB, sub *Subscription) error

	// ListExpired returns lapsed subscriptions whose paid period ended
	// before cutoff and that still hold a non-terminal status.
	ListExpired(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Subscription, error)
}
