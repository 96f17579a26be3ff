// Package domain contains persistence models for user accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
)

// UserStatus is a soft-delete lifecycle state. Users are never hard-deleted.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
	UserStatusDeleted   UserStatus = "DELETED"
)

// User is an account record. The two credit buckets have different expiry
// semantics: monthly credits reset on the billing anniversary, purchased
// credits never expire.
type User struct {
	ID               snowflake.ID        `gorm:"primaryKey"`
	Email            string              `gorm:"type:text;not null;uniqueIndex:ux_users_email"`
	Name             string              `gorm:"type:text;not null"`
	PlanType         plandomain.PlanType `gorm:"column:plan_type;type:text;not null;default:FREE"`
	MonthlyCredits   int64               `gorm:"not null;default:0"`
	PurchasedCredits int64               `gorm:"not null;default:0"`
	CreditCap        int64               `gorm:"not null;default:0"`
	LastCreditReset  time.Time           `gorm:"column:last_credit_reset;not null"`
	Status           UserStatus          `gorm:"type:text;not null;default:ACTIVE"`
	StripeCustomerID string              `gorm:"column:stripe_customer_id;type:text"`
	CreatedAt        time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// TotalCredits returns the spendable balance across both buckets.
func (u User) TotalCredits() int64 {
	return u.MonthlyCredits + u.PurchasedCredits
}
