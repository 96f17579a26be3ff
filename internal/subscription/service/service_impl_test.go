package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prompthive/costlens/internal/clock"
	"github.com/prompthive/costlens/internal/config"
	creditdomain "github.com/prompthive/costlens/internal/credit/domain"
	creditrepo "github.com/prompthive/costlens/internal/credit/repository"
	creditservice "github.com/prompthive/costlens/internal/credit/service"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	planrepo "github.com/prompthive/costlens/internal/plan/repository"
	planservice "github.com/prompthive/costlens/internal/plan/service"
	"github.com/prompthive/costlens/internal/subscription/domain"
	subrepo "github.com/prompthive/costlens/internal/subscription/repository"
	userdomain "github.com/prompthive/costlens/internal/user/domain"
	userrepo "github.com/prompthive/costlens/internal/user/repository"
	userservice "github.com/prompthive/costlens/internal/user/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type subFixture struct {
	db     *gorm.DB
	clock  *clock.FakeClock
	svc    domain.Service
	users  userdomain.Service
	userID snowflake.ID
}

func newSubFixture(t *testing.T) *subFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&plandomain.Plan{},
		&creditdomain.CreditEntry{},
		&domain.Subscription{},
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
	svc := New(Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo: subrepo.Provide(), Users: users, Plans: plans, Credits: credits,
	})

	resp, err := users.Create(context.Background(), userdomain.CreateRequest{
		Email: "ana@example.com",
		Name:  "Ana",
	})
	require.NoError(t, err)
	userID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)

	return &subFixture{db: db, clock: fake, svc: svc, users: users, userID: userID}
}

func TestActivate_UpgradesPlanAndTopsUpCredits(t *testing.T) {
	f := newSubFixture(t)
	ctx := context.Background()
	periodEnd := f.clock.Now().AddDate(0, 1, 0)

	require.NoError(t, f.svc.Activate(ctx, f.userID, plandomain.PlanPro, "sub_123", periodEnd))

	user, err := f.users.GetByID(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, plandomain.PlanPro, user.PlanType)
	assert.Equal(t, int64(2000), user.MonthlyCredits)

	sub, err := f.svc.GetByUser(ctx, f.userID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, domain.StatusActive, sub.Status)
	assert.Equal(t, periodEnd.Unix(), sub.CurrentPeriodEnd.Unix())

	// The top-up is ledgered as the difference over the existing bucket.
	var entries []creditdomain.CreditEntry
	require.NoError(t, f.db.Where("user_id = ? AND description = ?", f.userID, "plan upgrade allotment").
		Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1900), entries[0].Amount)
}

func TestActivate_RedeliveryGrantsOnce(t *testing.T) {
	f := newSubFixture(t)
	ctx := context.Background()
	periodEnd := f.clock.Now().AddDate(0, 1, 0)

	require.NoError(t, f.svc.Activate(ctx, f.userID, plandomain.PlanPro, "sub_123", periodEnd))
	require.NoError(t, f.svc.Activate(ctx, f.userID, plandomain.PlanPro, "sub_123", periodEnd))

	user, err := f.users.GetByID(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), user.MonthlyCredits)
}

func TestActivate_FreePlanRejected(t *testing.T) {
	f := newSubFixture(t)
	err := f.svc.Activate(context.Background(), f.userID, plandomain.PlanFree, "sub_123", f.clock.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)
}

func TestRenew_ExtendsPeriodForwardOnly(t *testing.T) {
	f := newSubFixture(t)
	ctx := context.Background()
	periodEnd := f.clock.Now().AddDate(0, 1, 0)

	require.NoError(t, f.svc.Activate(ctx, f.userID, plandomain.PlanPro, "sub_123", periodEnd))

	later := periodEnd.AddDate(0, 1, 0)
	require.NoError(t, f.svc.Renew(ctx, "sub_123", later))

	sub, err := f.svc.GetByUser(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, later.Unix(), sub.CurrentPeriodEnd.Unix())

	// A stale renewal never walks the period backwards.
	require.NoError(t, f.svc.Renew(ctx, "sub_123", periodEnd))
	sub, err = f.svc.GetByUser(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, later.Unix(), sub.CurrentPeriodEnd.Unix())
}

func TestRenew_ClearsPastDue(t *testing.T) {
	f := newSubFixture(t)
	ctx := context.Background()
	periodEnd := f.clock.Now().AddDate(0, 1, 0)

	require.NoError(t, f.svc.Activate(ctx, f.userID, plandomain.PlanPro, "sub_123", periodEnd))
	require.NoError(t, f.svc.MarkPastDue(ctx, "sub_123"))

	sub, _ := f.svc.GetByUser(ctx, f.userID)
	assert.Equal(t, domain.StatusPastDue, sub.Status)

	require.NoError(t, f.svc.Renew(ctx, "sub_123", periodEnd.AddDate(0, 1, 0)))
	sub, _ = f.svc.GetByUser(ctx, f.userID)
	assert.Equal(t, domain.StatusActive, sub.Status)
}

func TestRenew_UnknownSubscription(t *testing.T) {
	f := newSubFixture(t)
	err := f.svc.Renew(context.Background(), "sub_missing", f.clock.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExpireDue_DowngradesLapsedSubscriptions(t *testing.T) {
	f := newSubFixture(t)
	ctx := context.Background()
	periodEnd := f.clock.Now().AddDate(0, 1, 0)

	require.NoError(t, f.svc.Activate(ctx, f.userID, plandomain.PlanPro, "sub_123", periodEnd))
	require.NoError(t, f.svc.Cancel(ctx, "sub_123"))

	// Still inside the paid period: nothing expires.
	expired, err := f.svc.ExpireDue(ctx, periodEnd.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	expired, err = f.svc.ExpireDue(ctx, periodEnd.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	user, err := f.users.GetByID(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, plandomain.PlanFree, user.PlanType)

	sub, err := f.svc.GetByUser(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, sub.Status)

	// Credits already granted stay until the next monthly reset clips them.
	assert.Equal(t, int64(2000), user.MonthlyCredits)
}

func TestCancelByUser(t *testing.T) {
	f := newSubFixture(t)
	ctx := context.Background()
	periodEnd := f.clock.Now().AddDate(0, 1, 0)
	require.NoError(t, f.svc.Activate(ctx, f.userID, plandomain.PlanPro, "sub_123", periodEnd))

	require.NoError(t, f.svc.CancelByUser(ctx, f.userID))

	sub, err := f.svc.GetByUser(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)

	// Second cancel is a no-op, not an error.
	assert.NoError(t, f.svc.CancelByUser(ctx, f.userID))
}

func TestCancelByUserWithoutSubscription(t *testing.T) {
	f := newSubFixture(t)
	err := f.svc.CancelByUser(context.Background(), f.userID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
