package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	apikeydomain "github.com/prompthive/costlens/internal/apikey/domain"
	apikeyrepo "github.com/prompthive/costlens/internal/apikey/repository"
	apikeyservice "github.com/prompthive/costlens/internal/apikey/service"
	"github.com/prompthive/costlens/internal/clock"
	"github.com/prompthive/costlens/internal/config"
	creditdomain "github.com/prompthive/costlens/internal/credit/domain"
	creditrepo "github.com/prompthive/costlens/internal/credit/repository"
	creditservice "github.com/prompthive/costlens/internal/credit/service"
	entitlementservice "github.com/prompthive/costlens/internal/entitlement/service"
	paymentdomain "github.com/prompthive/costlens/internal/payment/domain"
	paymentrepo "github.com/prompthive/costlens/internal/payment/repository"
	paymentservice "github.com/prompthive/costlens/internal/payment/service"
	paymentstripe "github.com/prompthive/costlens/internal/payment/stripe"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	planrepo "github.com/prompthive/costlens/internal/plan/repository"
	planservice "github.com/prompthive/costlens/internal/plan/service"
	subdomain "github.com/prompthive/costlens/internal/subscription/domain"
	subrepo "github.com/prompthive/costlens/internal/subscription/repository"
	subservice "github.com/prompthive/costlens/internal/subscription/service"
	usagedomain "github.com/prompthive/costlens/internal/usage/domain"
	usagerepo "github.com/prompthive/costlens/internal/usage/repository"
	usageservice "github.com/prompthive/costlens/internal/usage/service"
	userdomain "github.com/prompthive/costlens/internal/user/domain"
	userrepo "github.com/prompthive/costlens/internal/user/repository"
	userservice "github.com/prompthive/costlens/internal/user/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type serverFixture struct {
	srv       *Server
	engine    *gin.Engine
	apiKeySvc apikeydomain.Service
	userSvc   userdomain.Service
	creditSvc creditdomain.Service
	signups   int
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&plandomain.Plan{},
		&creditdomain.CreditEntry{},
		&usagedomain.UsageMetric{},
		&subdomain.Subscription{},
		&paymentdomain.WebhookEvent{},
		&apikeydomain.APIKey{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	cfg := config.Config{CreditPriceCents: 1}

	require.NoError(t, db.Create(&plandomain.Plan{
		ID:              node.Generate(),
		Type:            plandomain.PlanFree,
		Name:            "Free",
		MonthlyCredits:  100,
		CreditCap:       500,
		SpendLimitCents: 100,
		Limits: datatypes.JSONMap{
			plandomain.FeaturePrompts:  int64(25),
			plandomain.FeatureTestRuns: int64(20),
		},
		Active:    true,
		CreatedAt: fake.Now(),
		UpdatedAt: fake.Now(),
	}).Error)

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
	usage := usageservice.New(usageservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Repo: usagerepo.Provide(),
	})
	entitlements := entitlementservice.New(entitlementservice.Params{
		Cfg: cfg, Log: log, Clock: fake,
		Users: users, Plans: plans, Usage: usage, Credits: credits,
	})
	subs := subservice.New(subservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo: subrepo.Provide(), Users: users, Plans: plans, Credits: credits,
	})
	payments := paymentservice.New(paymentservice.Params{
		DB: db, Cfg: cfg, Log: log, GenID: node, Clock: fake,
		Adapter: paymentstripe.NewAdapter(""),
		Repo:    paymentrepo.Provide(),
		Subs:    subs, Users: users, Plans: plans, Credits: credits,
	})
	apiKeys := apikeyservice.New(apikeyservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Repo: apikeyrepo.Provide(),
	})

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin:            engine,
		Cfg:            cfg,
		DB:             db,
		Log:            log,
		GenID:          node,
		Clock:          fake,
		APIKeySvc:      apiKeys,
		PlanSvc:        plans,
		UserSvc:        users,
		CreditSvc:      credits,
		EntitlementSvc: entitlements,
		UsageSvc:       usage,
		SubSvc:         subs,
		PaymentSvc:     payments,
	})

	return &serverFixture{
		srv:       srv,
		engine:    engine,
		apiKeySvc: apiKeys,
		userSvc:   users,
		creditSvc: credits,
	}
}

func (f *serverFixture) request(t *testing.T, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *serverFixture) signupWithKey(t *testing.T, scopes ...string) (snowflake.ID, string) {
	t.Helper()

	f.signups++
	resp, err := f.userSvc.Create(context.Background(), userdomain.CreateRequest{
		Email: fmt.Sprintf("user%d@example.com", f.signups),
		Name:  "Test",
	})
	require.NoError(t, err)
	userID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)

	secret, err := f.apiKeySvc.Create(context.Background(), userID, apikeydomain.CreateRequest{
		Name:   "test",
		Scopes: scopes,
	})
	require.NoError(t, err)
	return userID, secret.APIKey
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSignupEndpoint(t *testing.T) {
	f := newServerFixture(t)

	w := f.request(t, http.MethodPost, "/api/signup", "", gin.H{
		"email": "ana@example.com",
		"name":  "Ana",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeEnvelope(t, w)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "FREE", data["plan_type"])
	assert.Equal(t, float64(100), data["monthly_credits"])
}

func TestSignupEndpoint_ValidationErrorEnvelope(t *testing.T) {
	f := newServerFixture(t)

	w := f.request(t, http.MethodPost, "/api/signup", "", gin.H{
		"email": "not-an-email",
		"name":  "Ana",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeEnvelope(t, w)
	assert.Equal(t, false, body["success"])
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "validation_error", errObj["type"])
}

func TestAuthentication(t *testing.T) {
	f := newServerFixture(t)

	w := f.request(t, http.MethodGet, "/api/credits", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.request(t, http.MethodGet, "/api/credits", "cl_live_bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, key := f.signupWithKey(t)
	w = f.request(t, http.MethodGet, "/api/credits", key, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeEnvelope(t, w)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(100), data["total"])
	assert.Equal(t, float64(0), data["used"])
}

func TestRunMetered(t *testing.T) {
	f := newServerFixture(t)
	_, key := f.signupWithKey(t)

	// gpt-4o-mini at 1/2 credits per 1k tokens: 10k in + 10k out = 30.
	w := f.request(t, http.MethodPost, "/api/runs", key, gin.H{
		"model":         "gpt-4o-mini",
		"input_tokens":  10000,
		"output_tokens": 10000,
	})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeEnvelope(t, w)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(30), data["cost"])
	assert.Equal(t, float64(70), data["remaining"])
}

func TestRunMetered_InsufficientCredits(t *testing.T) {
	f := newServerFixture(t)
	_, key := f.signupWithKey(t)

	w := f.request(t, http.MethodPost, "/api/runs", key, gin.H{
		"model":         "gpt-4o",
		"input_tokens":  1000000,
		"output_tokens": 1000000,
	})
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	body := decodeEnvelope(t, w)
	assert.Equal(t, false, body["success"])
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "insufficient_credits", errObj["type"])
	details := errObj["details"].(map[string]any)
	assert.Equal(t, float64(100), details["current_credits"])
}

func TestRunMetered_FeatureLimitExhausted(t *testing.T) {
	f := newServerFixture(t)
	_, key := f.signupWithKey(t)

	// Burn through the plan's run quota without spending credits.
	for i := 0; i < 20; i++ {
		w := f.request(t, http.MethodPost, "/api/usage", key, gin.H{
			"feature": plandomain.FeatureTestRuns,
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := f.request(t, http.MethodPost, "/api/runs", key, gin.H{
		"model":        "gpt-4o-mini",
		"input_tokens": 1000,
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	body := decodeEnvelope(t, w)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "limit_exceeded", errObj["type"])
}

func TestAdminEndpointsRequireAdminScope(t *testing.T) {
	f := newServerFixture(t)
	userID, apiOnly := f.signupWithKey(t)

	w := f.request(t, http.MethodGet, "/admin/users/"+userID.String(), apiOnly, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	_, adminKey := f.signupWithKey(t, apikeydomain.ScopeAPI, apikeydomain.ScopeAdmin)
	w = f.request(t, http.MethodGet, "/admin/users/"+userID.String(), adminKey, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminGrantCredits(t *testing.T) {
	f := newServerFixture(t)
	userID, _ := f.signupWithKey(t)
	_, adminKey := f.signupWithKey(t, apikeydomain.ScopeAPI, apikeydomain.ScopeAdmin)

	w := f.request(t, http.MethodPost, "/admin/credits/grant", adminKey, gin.H{
		"user_id": userID.String(),
		"amount":  50,
		"type":    "BONUS",
	})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeEnvelope(t, w)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(150), data["total_credits"])
}

func TestCheckoutWithoutStripeConfigured(t *testing.T) {
	f := newServerFixture(t)
	_, key := f.signupWithKey(t)

	w := f.request(t, http.MethodPost, "/api/credits/checkout", key, gin.H{"plan_type": "PRO"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWebhookWithoutSecretConfigured(t *testing.T) {
	f := newServerFixture(t)

	w := f.request(t, http.MethodPost, "/api/webhooks/stripe", "", gin.H{"id": "evt_1"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetPlanEndpoint(t *testing.T) {
	f := newServerFixture(t)
	_, key := f.signupWithKey(t)

	w := f.request(t, http.MethodGet, "/api/plans/FREE", key, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeEnvelope(t, w)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Free", data["name"])

	w = f.request(t, http.MethodGet, "/api/plans/GOLD", key, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRevokedKeyStopsWorking(t *testing.T) {
	f := newServerFixture(t)
	userID, key := f.signupWithKey(t)

	keys, err := f.apiKeySvc.List(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	w := f.request(t, http.MethodDelete, "/api/keys/"+keys[0].ID, key, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, http.MethodGet, "/api/credits", key, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFeatureUsageEndpoint(t *testing.T) {
	f := newServerFixture(t)
	_, key := f.signupWithKey(t)

	w := f.request(t, http.MethodPost, "/api/usage", key, gin.H{"feature": "prompts", "delta": 3})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, http.MethodGet, "/api/usage/prompts", key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, "prompts", data["feature"])
	assert.Equal(t, float64(3), data["count"])

	// Untracked features read as zero, not as missing.
	w = f.request(t, http.MethodGet, "/api/usage/test_runs", key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(0), data["count"])
}

func TestCancelSubscriptionWithoutSubscription(t *testing.T) {
	f := newServerFixture(t)
	_, key := f.signupWithKey(t)

	w := f.request(t, http.MethodPost, "/api/subscription/cancel", key, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreditPackCheckoutDisabled(t *testing.T) {
	f := newServerFixture(t)
	_, key := f.signupWithKey(t)

	w := f.request(t, http.MethodPost, "/api/credits/checkout", key, gin.H{"credits": 500})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminResetEndpoint(t *testing.T) {
	f := newServerFixture(t)
	userID, _ := f.signupWithKey(t)
	_, adminKey := f.signupWithKey(t, apikeydomain.ScopeAPI, apikeydomain.ScopeAdmin)

	// The signup grant anchors the period, so an immediate reset is a no-op.
	w := f.request(t, http.MethodPost, "/admin/users/"+userID.String()+"/reset", adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, false, data["reset"])
}
