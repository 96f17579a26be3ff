package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	GetByID(ctx context.Context, userID snowflake.ID) (*User, error)
	GetByStripeCustomer(ctx context.Context, customerID string) (*User, error)
	ChangePlan(ctx context.Context, userID snowflake.ID, planType plandomain.PlanType) error
	LinkStripeCustomer(ctx context.Context, userID snowflake.ID, customerID string) error
	Suspend(ctx context.Context, userID snowflake.ID) error
}

type CreateRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Response struct {
	ID               string              `json:"id"`
	Email            string              `json:"email"`
	Name             string              `json:"name"`
	PlanType         plandomain.PlanType `json:"plan_type"`
	MonthlyCredits   int64               `json:"monthly_credits"`
	PurchasedCredits int64               `json:"purchased_credits"`
	CreditCap        int64               `json:"credit_cap"`
	Status           UserStatus          `json:"status"`
	CreatedAt        time.Time           `json:"created_at"`
}

var (
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidName  = errors.New("invalid_name")
	ErrNotFound     = errors.New("not_found")
	ErrEmailTaken   = errors.New("email_taken")
)
