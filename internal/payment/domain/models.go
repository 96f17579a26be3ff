// Package domain contains payment provider event types.
package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// EventType is the provider-neutral classification of a webhook event.
type EventType string

const (
	EventTypeCheckoutCompleted    EventType = "checkout_completed"
	EventTypeInvoicePaid          EventType = "invoice_paid"
	EventTypePaymentFailed        EventType = "payment_failed"
	EventTypeSubscriptionCanceled EventType = "subscription_canceled"
	EventTypeSubscriptionUpdated  EventType = "subscription_updated"
)

// PaymentEvent is a parsed, provider-neutral webhook event. Fields are
// populated per event type; absent values stay zero.
type PaymentEvent struct {
	ProviderEventID   string
	Type              EventType
	CustomerID        string
	SubscriptionID    string
	UserID            snowflake.ID
	PlanType          string
	Credits           int64
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
}

// WebhookEvent records a processed provider event. The unique index on
// the provider event id is what makes redelivery a no-op.
type WebhookEvent struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	Provider        string       `gorm:"type:text;not null;uniqueIndex:ux_webhook_provider_event,priority:1"`
	ProviderEventID string       `gorm:"column:provider_event_id;type:text;not null;uniqueIndex:ux_webhook_provider_event,priority:2"`
	EventType       EventType    `gorm:"column:event_type;type:text;not null"`
	ReceivedAt      time.Time    `gorm:"column:received_at;not null"`
}

// TableName sets the database table name.
func (WebhookEvent) TableName() string { return "webhook_events" }

// Adapter verifies and parses raw provider payloads.
type Adapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

// Repository persists the webhook idempotency log.
type Repository interface {
	// RecordEvent claims the provider event id. Returns false when a
	// previous delivery already claimed it.
	RecordEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)

	// ReleaseEvent drops a claim after a failed apply so the provider's
	// retry is not treated as a duplicate.
	ReleaseEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) error
}

// CheckoutSession is the hosted payment page handed back to the client.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// Service is the payment boundary: inbound webhooks and outbound
// checkout session creation.
type Service interface {
	// HandleWebhook verifies, parses, and applies one provider event.
	// Redelivered events return nil without side effects.
	HandleWebhook(ctx context.Context, payload []byte, headers http.Header) error

	// CreateCheckoutSession opens a hosted checkout for a paid plan.
	CreateCheckoutSession(ctx context.Context, userID snowflake.ID, planType string) (*CheckoutSession, error)

	// CreateCreditCheckout opens a one-time checkout for a purchased
	// credit pack. The credits land when the completion webhook arrives.
	CreateCreditCheckout(ctx context.Context, userID snowflake.ID, credits int64) (*CheckoutSession, error)
}

var (
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrInvalidEvent       = errors.New("invalid_event")
	ErrEventIgnored       = errors.New("event_ignored")
	ErrProviderDisabled   = errors.New("payment_provider_disabled")
	ErrPlanNotPurchasable = errors.New("plan_not_purchasable")
	ErrInvalidCreditPack  = errors.New("invalid_credit_pack")
)
