package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/lib/pq"
	"github.com/prompthive/costlens/internal/clock"
	"github.com/prompthive/costlens/internal/config"
	creditdomain "github.com/prompthive/costlens/internal/credit/domain"
	creditrepo "github.com/prompthive/costlens/internal/credit/repository"
	creditservice "github.com/prompthive/costlens/internal/credit/service"
	"github.com/prompthive/costlens/internal/entitlement/domain"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	planrepo "github.com/prompthive/costlens/internal/plan/repository"
	planservice "github.com/prompthive/costlens/internal/plan/service"
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

type entitlementFixture struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	svc     domain.Service
	users   userdomain.Service
	usage   usagedomain.Service
	credits creditdomain.Service
	userID  snowflake.ID
}

func newEntitlementFixture(t *testing.T) *entitlementFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&plandomain.Plan{},
		&creditdomain.CreditEntry{},
		&usagedomain.UsageMetric{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	require.NoError(t, db.Create(&plandomain.Plan{
		ID:              node.Generate(),
		Type:            plandomain.PlanFree,
		Name:            "Free",
		MonthlyCredits:  100,
		CreditCap:       500,
		SpendLimitCents: 50,
		Features:        pq.StringArray{plandomain.FlagVersionControl},
		Limits: datatypes.JSONMap{
			plandomain.FeaturePrompts:        int64(3),
			plandomain.FeatureTeamMembers:    int64(-1),
			plandomain.FeaturePlaygroundRuns: int64(0),
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

	svc := New(Params{
		Cfg:     config.Config{CreditPriceCents: 1},
		Log:     log,
		Clock:   fake,
		Users:   users,
		Plans:   plans,
		Usage:   usage,
		Credits: credits,
	})

	resp, err := users.Create(context.Background(), userdomain.CreateRequest{
		Email: "ana@example.com",
		Name:  "Ana",
	})
	require.NoError(t, err)
	userID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)

	return &entitlementFixture{
		db: db, clock: fake, svc: svc,
		users: users, usage: usage, credits: credits, userID: userID,
	}
}

func TestCheckFeature_CountableLimit(t *testing.T) {
	f := newEntitlementFixture(t)
	ctx := context.Background()

	decision, err := f.svc.CheckFeature(ctx, f.userID, plandomain.FeaturePrompts)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(3), decision.Limit)
	assert.Equal(t, int64(0), decision.Used)
	assert.Equal(t, int64(3), decision.Remaining)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.usage.Track(ctx, f.userID, plandomain.FeaturePrompts, 1))
	}

	decision, err = f.svc.CheckFeature(ctx, f.userID, plandomain.FeaturePrompts)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.ReasonLimitReached, decision.Reason)
	assert.Equal(t, int64(0), decision.Remaining)
}

func TestCheckFeature_UnlimitedAndDisabled(t *testing.T) {
	f := newEntitlementFixture(t)
	ctx := context.Background()

	decision, err := f.svc.CheckFeature(ctx, f.userID, plandomain.FeatureTeamMembers)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(-1), decision.Remaining)

	decision, err = f.svc.CheckFeature(ctx, f.userID, plandomain.FeaturePlaygroundRuns)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.ReasonFeatureDisabled, decision.Reason)

	// Features absent from the plan map count as disabled.
	decision, err = f.svc.CheckFeature(ctx, f.userID, "no_such_feature")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestCheckFlag(t *testing.T) {
	f := newEntitlementFixture(t)
	ctx := context.Background()

	decision, err := f.svc.CheckFlag(ctx, f.userID, plandomain.FlagVersionControl)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = f.svc.CheckFlag(ctx, f.userID, plandomain.FlagCustomModels)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.ReasonFeatureDisabled, decision.Reason)
}

func TestCheckSpendLimit(t *testing.T) {
	f := newEntitlementFixture(t)
	ctx := context.Background()

	decision, err := f.svc.CheckSpendLimit(ctx, f.userID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// Spend past the 50 cent ceiling at 1 cent per credit.
	_, err = f.credits.DebitCredits(ctx, f.userID, 60, "heavy run")
	require.NoError(t, err)

	decision, err = f.svc.CheckSpendLimit(ctx, f.userID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.ReasonSpendLimitReached, decision.Reason)
	assert.Equal(t, int64(60), decision.Used)
}

func TestCheckFeature_UnknownUser(t *testing.T) {
	f := newEntitlementFixture(t)
	node, _ := snowflake.NewNode(3)

	_, err := f.svc.CheckFeature(context.Background(), node.Generate(), plandomain.FeaturePrompts)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
