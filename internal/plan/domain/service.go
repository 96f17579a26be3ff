package domain

import (
	"context"
	"errors"
	"time"
)

// Service reads and administers the plan catalog.
type Service interface {
	GetByType(ctx context.Context, planType PlanType) (*Plan, error)
	List(ctx context.Context) ([]Response, error)
	Upsert(ctx context.Context, req UpsertRequest) (*Response, error)
}

type UpsertRequest struct {
	Type            string           `json:"plan_type"`
	Name            string           `json:"name"`
	PriceCents      int64            `json:"price_cents"`
	BillingPeriod   string           `json:"billing_period"`
	MonthlyCredits  int64            `json:"monthly_credits"`
	CreditCap       int64            `json:"credit_cap"`
	SpendLimitCents int64            `json:"spend_limit_cents"`
	Features        []string         `json:"features"`
	Limits          map[string]int64 `json:"limits"`
	StripePriceID   string           `json:"stripe_price_id"`
	Active          *bool            `json:"active"`
}

type Response struct {
	ID              string           `json:"id"`
	Type            PlanType         `json:"plan_type"`
	Name            string           `json:"name"`
	PriceCents      int64            `json:"price_cents"`
	BillingPeriod   string           `json:"billing_period"`
	MonthlyCredits  int64            `json:"monthly_credits"`
	CreditCap       int64            `json:"credit_cap"`
	SpendLimitCents int64            `json:"spend_limit_cents"`
	Features        []string         `json:"features"`
	Limits          map[string]int64 `json:"limits"`
	StripePriceID   string           `json:"stripe_price_id,omitempty"`
	Active          bool             `json:"active"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

var (
	ErrInvalidPlanType = errors.New("invalid_plan_type")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidCredits  = errors.New("invalid_credits")
	ErrNotFound        = errors.New("not_found")
)

// ParsePlanType validates and normalizes a plan type string.
func ParsePlanType(raw string) (PlanType, error) {
	switch PlanType(raw) {
	case PlanFree, PlanPro, PlanEnterprise:
		return PlanType(raw), nil
	default:
		return "", ErrInvalidPlanType
	}
}
