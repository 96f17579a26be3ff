package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/prompthive/costlens/internal/clock"
	"github.com/prompthive/costlens/internal/config"
	creditdomain "github.com/prompthive/costlens/internal/credit/domain"
	"github.com/prompthive/costlens/internal/payment/domain"
	obsmetrics "github.com/prompthive/costlens/internal/observability/metrics"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	subdomain "github.com/prompthive/costlens/internal/subscription/domain"
	userdomain "github.com/prompthive/costlens/internal/user/domain"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Cfg     config.Config
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Adapter domain.Adapter
	Repo    domain.Repository
	Subs    subdomain.Service
	Users   userdomain.Service
	Plans   plandomain.Service
	Credits creditdomain.Service
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type paymentService struct {
	db      *gorm.DB
	cfg     config.Config
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	adapter domain.Adapter
	repo    domain.Repository
	subs    subdomain.Service
	users   userdomain.Service
	plans   plandomain.Service
	credits creditdomain.Service
	metrics *obsmetrics.Metrics
	stripe  *client.API
}

func New(p Params) domain.Service {
	svc := &paymentService{
		db:      p.DB,
		cfg:     p.Cfg,
		log:     p.Log.Named("payment.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		adapter: p.Adapter,
		repo:    p.Repo,
		subs:    p.Subs,
		users:   p.Users,
		plans:   p.Plans,
		credits: p.Credits,
		metrics: p.Metrics,
	}
	if p.Cfg.StripeSecretKey != "" {
		sc := &client.API{}
		sc.Init(p.Cfg.StripeSecretKey, nil)
		svc.stripe = sc
	}
	return svc
}

func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	if err := s.adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := s.adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, domain.ErrEventIgnored) {
			return nil
		}
		return err
	}

	claimed, err := s.repo.RecordEvent(ctx, s.db, &domain.WebhookEvent{
		ID:              s.genID.Generate(),
		Provider:        s.adapter.Provider(),
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		ReceivedAt:      s.clock.Now(),
	})
	if err != nil {
		return err
	}
	if !claimed {
		s.log.Debug("webhook event already processed",
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return nil
	}

	if err := s.apply(ctx, event); err != nil {
		// Release the claim so the provider's retry can reprocess the
		// event instead of hitting the idempotency log.
		if relErr := s.repo.ReleaseEvent(ctx, s.db, s.adapter.Provider(), event.ProviderEventID); relErr != nil {
			s.log.Error("webhook claim release failed",
				zap.String("provider_event_id", event.ProviderEventID),
				zap.Error(relErr),
			)
		}
		return err
	}
	s.metrics.RecordWebhookEvent(string(event.Type))
	return nil
}

func (s *paymentService) apply(ctx context.Context, event *domain.PaymentEvent) error {
	switch event.Type {
	case domain.EventTypeCheckoutCompleted:
		if err := s.users.LinkStripeCustomer(ctx, event.UserID, event.CustomerID); err != nil {
			return err
		}
		if event.Credits > 0 {
			_, err := s.credits.AddCredits(ctx, event.UserID, event.Credits,
				creditdomain.EntryTypePurchase, "credit pack purchase")
			return err
		}
		planType, err := plandomain.ParsePlanType(event.PlanType)
		if err != nil {
			return domain.ErrInvalidEvent
		}
		periodEnd := event.PeriodEnd
		if periodEnd.IsZero() {
			// Checkout sessions do not carry the period; the first
			// invoice event corrects it.
			periodEnd = s.clock.Now().AddDate(0, 1, 0)
		}
		return s.subs.Activate(ctx, event.UserID, planType, event.SubscriptionID, periodEnd)

	case domain.EventTypeInvoicePaid:
		err := s.subs.Renew(ctx, event.SubscriptionID, event.PeriodEnd)
		if errors.Is(err, subdomain.ErrNotFound) {
			// First invoice can land before the checkout event.
			s.log.Warn("invoice for unknown subscription",
				zap.String("provider_subscription_id", event.SubscriptionID),
			)
			return nil
		}
		return err

	case domain.EventTypePaymentFailed:
		err := s.subs.MarkPastDue(ctx, event.SubscriptionID)
		if errors.Is(err, subdomain.ErrNotFound) {
			return nil
		}
		return err

	case domain.EventTypeSubscriptionCanceled:
		err := s.subs.Cancel(ctx, event.SubscriptionID)
		if errors.Is(err, subdomain.ErrNotFound) {
			return nil
		}
		return err

	case domain.EventTypeSubscriptionUpdated:
		var err error
		if event.CancelAtPeriodEnd {
			err = s.subs.Cancel(ctx, event.SubscriptionID)
		} else {
			err = s.subs.Renew(ctx, event.SubscriptionID, event.PeriodEnd)
		}
		if errors.Is(err, subdomain.ErrNotFound) {
			return nil
		}
		return err

	default:
		return nil
	}
}

func (s *paymentService) CreateCheckoutSession(ctx context.Context, userID snowflake.ID, planType string) (*domain.CheckoutSession, error) {
	if s.stripe == nil {
		return nil, domain.ErrProviderDisabled
	}

	parsed, err := plandomain.ParsePlanType(planType)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.GetByType(ctx, parsed)
	if err != nil {
		return nil, err
	}
	if plan.PriceCents <= 0 || plan.StripePriceID == "" {
		return nil, domain.ErrPlanNotPurchasable
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(s.cfg.CheckoutSuccessURL),
		CancelURL:  stripe.String(s.cfg.CheckoutCancelURL),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(plan.StripePriceID),
			Quantity: stripe.Int64(1),
		}},
		Metadata: map[string]string{
			"user_id":   userID.String(),
			"plan_type": string(parsed),
		},
	}
	if user.StripeCustomerID != "" {
		params.Customer = stripe.String(user.StripeCustomerID)
	} else {
		params.CustomerEmail = stripe.String(user.Email)
	}

	session, err := s.stripe.CheckoutSessions.New(params)
	if err != nil {
		s.log.Error("checkout session create failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	return &domain.CheckoutSession{
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}

func (s *paymentService) CreateCreditCheckout(ctx context.Context, userID snowflake.ID, credits int64) (*domain.CheckoutSession, error) {
	if s.stripe == nil {
		return nil, domain.ErrProviderDisabled
	}
	if credits <= 0 {
		return nil, domain.ErrInvalidCreditPack
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(s.cfg.CheckoutSuccessURL),
		CancelURL:  stripe.String(s.cfg.CheckoutCancelURL),
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("usd"),
				UnitAmount: stripe.Int64(int64(s.cfg.CreditPriceCents)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("CostLens credits"),
				},
			},
			Quantity: stripe.Int64(credits),
		}},
		Metadata: map[string]string{
			"user_id": userID.String(),
			"credits": strconv.FormatInt(credits, 10),
		},
	}
	if user.StripeCustomerID != "" {
		params.Customer = stripe.String(user.StripeCustomerID)
	} else {
		params.CustomerEmail = stripe.String(user.Email)
	}

	session, err := s.stripe.CheckoutSessions.New(params)
	if err != nil {
		s.log.Error("credit checkout create failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	return &domain.CheckoutSession{
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}
