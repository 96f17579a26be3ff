package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prompthive/costlens/internal/clock"
	"github.com/prompthive/costlens/internal/config"
	creditdomain "github.com/prompthive/costlens/internal/credit/domain"
	creditrepo "github.com/prompthive/costlens/internal/credit/repository"
	creditservice "github.com/prompthive/costlens/internal/credit/service"
	"github.com/prompthive/costlens/internal/payment/domain"
	paymentrepo "github.com/prompthive/costlens/internal/payment/repository"
	paymentstripe "github.com/prompthive/costlens/internal/payment/stripe"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	planrepo "github.com/prompthive/costlens/internal/plan/repository"
	planservice "github.com/prompthive/costlens/internal/plan/service"
	subdomain "github.com/prompthive/costlens/internal/subscription/domain"
	subrepo "github.com/prompthive/costlens/internal/subscription/repository"
	subservice "github.com/prompthive/costlens/internal/subscription/service"
	userdomain "github.com/prompthive/costlens/internal/user/domain"
	userrepo "github.com/prompthive/costlens/internal/user/repository"
	userservice "github.com/prompthive/costlens/internal/user/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

type paymentFixture struct {
	db     *gorm.DB
	clock  *clock.FakeClock
	svc    domain.Service
	users  userdomain.Service
	subs   subdomain.Service
	userID snowflake.ID
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&plandomain.Plan{},
		&creditdomain.CreditEntry{},
		&subdomain.Subscription{},
		&domain.WebhookEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	for _, p := range []struct {
		planType plandomain.PlanType
		credits  int64
		cap      int64
	}{
		{plandomain.PlanFree, 100, 500},
		{plandomain.PlanPro, 2000, 10000},
	} {
		require.NoError(t, db.Create(&plandomain.Plan{
			ID:             node.Generate(),
			Type:           p.planType,
			Name:           string(p.planType),
			MonthlyCredits: p.credits,
			CreditCap:      p.cap,
			Limits:         datatypes.JSONMap{},
			Active:         true,
			CreatedAt:      fake.Now(),
			UpdatedAt:      fake.Now(),
		}).Error)
	}

	plans := planservice.New(planservice.Params{DB: db, Log: log, GenID: node, Repo: planrepo.Provide()})
	credits := creditservice.New(creditservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo:  creditrepo.Provide(),
		Plans: plans,
		Rates: config.NewStaticRateCardHolder(config.DefaultRateCard()),
	})
	users := userservice.New(userservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo: userrepo.Provide(), Plans: plans, Credits: credits,
	})
	subs := subservice.New(subservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo: subrepo.Provide(), Users: users, Plans: plans, Credits: credits,
	})

	svc := New(Params{
		DB:      db,
		Cfg:     config.Config{StripeWebhookSecret: webhookSecret},
		Log:     log,
		GenID:   node,
		Clock:   fake,
		Adapter: paymentstripe.NewAdapter(webhookSecret),
		Repo:    paymentrepo.Provide(),
		Subs:    subs,
		Users:   users,
		Plans:   plans,
		Credits: credits,
	})

	resp, err := users.Create(context.Background(), userdomain.CreateRequest{
		Email: "ana@example.com",
		Name:  "Ana",
	})
	require.NoError(t, err)
	userID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)

	return &paymentFixture{db: db, clock: fake, svc: svc, users: users, subs: subs, userID: userID}
}

func (f *paymentFixture) sign(t *testing.T, payload []byte) http.Header {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, err := fmt.Fprintf(mac, "%d.%s", ts, payload)
	require.NoError(t, err)

	h := http.Header{}
	h.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return h
}

func checkoutPayload(eventID string, userID snowflake.ID) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"customer": "cus_1",
			"subscription": "sub_1",
			"metadata": {"user_id": %q, "plan_type": "PRO"}
		}}
	}`, eventID, userID.String()))
}

func TestHandleWebhook_CheckoutActivatesSubscription(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payload := checkoutPayload("evt_1", f.userID)

	require.NoError(t, f.svc.HandleWebhook(ctx, payload, f.sign(t, payload)))

	user, err := f.users.GetByID(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, plandomain.PlanPro, user.PlanType)
	assert.Equal(t, "cus_1", user.StripeCustomerID)
	assert.Equal(t, int64(2000), user.MonthlyCredits)

	sub, err := f.subs.GetByUser(ctx, f.userID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, subdomain.StatusActive, sub.Status)
	assert.Equal(t, "sub_1", sub.StripeSubscriptionID)
}

func TestHandleWebhook_RedeliveryIsNoOp(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payload := checkoutPayload("evt_1", f.userID)

	require.NoError(t, f.svc.HandleWebhook(ctx, payload, f.sign(t, payload)))
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, f.sign(t, payload)))

	var count int64
	require.NoError(t, f.db.Model(&domain.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// The plan top-up happened exactly once.
	user, err := f.users.GetByID(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), user.MonthlyCredits)
}

func TestHandleWebhook_BadSignatureRejected(t *testing.T) {
	f := newPaymentFixture(t)
	payload := checkoutPayload("evt_1", f.userID)

	h := http.Header{}
	h.Set("Stripe-Signature", "t=1,v1=deadbeef")
	err := f.svc.HandleWebhook(context.Background(), payload, h)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	var count int64
	require.NoError(t, f.db.Model(&domain.WebhookEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHandleWebhook_UnhandledEventTypeIgnored(t *testing.T) {
	f := newPaymentFixture(t)
	payload := []byte(`{"id":"evt_9","type":"charge.refunded","data":{"object":{}}}`)

	require.NoError(t, f.svc.HandleWebhook(context.Background(), payload, f.sign(t, payload)))

	var count int64
	require.NoError(t, f.db.Model(&domain.WebhookEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHandleWebhook_InvoiceLifecycle(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	payload := checkoutPayload("evt_1", f.userID)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, f.sign(t, payload)))

	periodEnd := f.clock.Now().AddDate(0, 2, 0)
	invoice := []byte(fmt.Sprintf(`{
		"id": "evt_2",
		"type": "invoice.paid",
		"data": {"object": {
			"customer": "cus_1",
			"subscription": "sub_1",
			"lines": {"data": [{"period": {"end": %d}}]}
		}}
	}`, periodEnd.Unix()))
	require.NoError(t, f.svc.HandleWebhook(ctx, invoice, f.sign(t, invoice)))

	sub, err := f.subs.GetByUser(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, periodEnd.Unix(), sub.CurrentPeriodEnd.Unix())

	failed := []byte(`{
		"id": "evt_3",
		"type": "invoice.payment_failed",
		"data": {"object": {"customer": "cus_1", "subscription": "sub_1"}}
	}`)
	require.NoError(t, f.svc.HandleWebhook(ctx, failed, f.sign(t, failed)))

	sub, err = f.subs.GetByUser(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, subdomain.StatusPastDue, sub.Status)

	canceled := []byte(`{
		"id": "evt_4",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_1", "customer": "cus_1"}}
	}`)
	require.NoError(t, f.svc.HandleWebhook(ctx, canceled, f.sign(t, canceled)))

	sub, err = f.subs.GetByUser(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, subdomain.StatusCanceled, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
}

func TestHandleWebhook_InvoiceForUnknownSubscriptionTolerated(t *testing.T) {
	f := newPaymentFixture(t)
	invoice := []byte(`{
		"id": "evt_7",
		"type": "invoice.paid",
		"data": {"object": {"customer": "cus_9", "subscription": "sub_unknown"}}
	}`)
	assert.NoError(t, f.svc.HandleWebhook(context.Background(), invoice, f.sign(t, invoice)))
}

func TestCreateCheckoutSession_DisabledWithoutAPIKey(t *testing.T) {
	f := newPaymentFixture(t)
	_, err := f.svc.CreateCheckoutSession(context.Background(), f.userID, "PRO")
	assert.ErrorIs(t, err, domain.ErrProviderDisabled)
}

func TestHandleWebhook_CreditPackGrantsPurchasedCredits(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_pack_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_pack",
			"customer": "cus_1",
			"metadata": {"user_id": %q, "credits": "500"}
		}}
	}`, f.userID.String()))

	require.NoError(t, f.svc.HandleWebhook(ctx, payload, f.sign(t, payload)))

	user, err := f.users.GetByID(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), user.PurchasedCredits)
	assert.Equal(t, plandomain.PlanFree, user.PlanType)

	// Redelivery must not grant the pack twice.
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, f.sign(t, payload)))
	user, err = f.users.GetByID(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), user.PurchasedCredits)
}

func TestHandleWebhook_FailedApplyReleasesClaim(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_retry_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_ent",
			"customer": "cus_1",
			"subscription": "sub_ent",
			"metadata": {"user_id": %q, "plan_type": "ENTERPRISE"}
		}}
	}`, f.userID.String()))

	// The fixture has no ENTERPRISE plan row, so applying the event fails.
	require.Error(t, f.svc.HandleWebhook(ctx, payload, f.sign(t, payload)))

	var count int64
	require.NoError(t, f.db.Model(&domain.WebhookEvent{}).Count(&count).Error)
	assert.Zero(t, count, "failed delivery must not keep the idempotency claim")

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&plandomain.Plan{
		ID:             node.Generate(),
		Type:           plandomain.PlanEnterprise,
		Name:           "ENTERPRISE",
		MonthlyCredits: 50000,
		CreditCap:      200000,
		Limits:         datatypes.JSONMap{},
		Active:         true,
		CreatedAt:      f.clock.Now(),
		UpdatedAt:      f.clock.Now(),
	}).Error)

	// Stripe retries the exact same delivery; it must now go through.
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, f.sign(t, payload)))

	user, err := f.users.GetByID(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, plandomain.PlanEnterprise, user.PlanType)
}

func TestCreateCreditCheckout_DisabledWithoutAPIKey(t *testing.T) {
	f := newPaymentFixture(t)
	_, err := f.svc.CreateCreditCheckout(context.Background(), f.userID, 500)
	assert.ErrorIs(t, err, domain.ErrProviderDisabled)
}
