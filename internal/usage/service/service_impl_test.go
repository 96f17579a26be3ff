package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prompthive/costlens/internal/clock"
	"github.com/prompthive/costlens/internal/usage/domain"
	"github.com/prompthive/costlens/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newUsageService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.UsageMetric{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	})
	return svc, fake
}

func TestTrack_Validation(t *testing.T) {
	svc, _ := newUsageService(t)
	node, _ := snowflake.NewNode(2)
	userID := node.Generate()

	assert.ErrorIs(t, svc.Track(context.Background(), userID, "", 1), domain.ErrInvalidFeature)
	assert.ErrorIs(t, svc.Track(context.Background(), userID, "  ", 1), domain.ErrInvalidFeature)
	assert.ErrorIs(t, svc.Track(context.Background(), userID, "prompts", 0), domain.ErrInvalidDelta)
	assert.ErrorIs(t, svc.Track(context.Background(), userID, "prompts", -3), domain.ErrInvalidDelta)
}

func TestTrack_AggregatesWithinPeriod(t *testing.T) {
	svc, fake := newUsageService(t)
	node, _ := snowflake.NewNode(2)
	userID := node.Generate()

	require.NoError(t, svc.Track(context.Background(), userID, "prompts", 1))
	require.NoError(t, svc.Track(context.Background(), userID, "prompts", 4))
	require.NoError(t, svc.Track(context.Background(), userID, "playground_runs", 2))

	count, err := svc.CurrentCount(context.Background(), userID, "prompts", fake.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	summary, err := svc.Summary(context.Background(), userID, fake.Now())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"prompts": 5, "playground_runs": 2}, summary)
}

func TestTrack_NewPeriodStartsFresh(t *testing.T) {
	svc, fake := newUsageService(t)
	node, _ := snowflake.NewNode(2)
	userID := node.Generate()

	require.NoError(t, svc.Track(context.Background(), userID, "prompts", 3))

	fake.Advance(31 * 24 * time.Hour)
	require.NoError(t, svc.Track(context.Background(), userID, "prompts", 1))

	count, err := svc.CurrentCount(context.Background(), userID, "prompts", fake.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// The old bucket survives for history.
	previous, err := svc.CurrentCount(context.Background(), userID, "prompts", fake.Now().AddDate(0, -1, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(3), previous)
}

func TestCurrentCount_MissingBucketIsZero(t *testing.T) {
	svc, fake := newUsageService(t)
	node, _ := snowflake.NewNode(2)

	count, err := svc.CurrentCount(context.Background(), node.Generate(), "prompts", fake.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
