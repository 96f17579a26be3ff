package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service records and reads feature usage counters.
type Service interface {
	// Track increments the monthly counter for a feature. Concurrent
	// increments for the same bucket never lose updates.
	Track(ctx context.Context, userID snowflake.ID, feature string, delta int64) error

	// CurrentCount returns the monthly counter for a feature as of now.
	// A bucket that does not exist yet counts as zero.
	CurrentCount(ctx context.Context, userID snowflake.ID, feature string, now time.Time) (int64, error)

	// Summary returns all counters for the user's current monthly period.
	Summary(ctx context.Context, userID snowflake.ID, now time.Time) (map[string]int64, error)
}

// Repository persists usage counters.
type Repository interface {
	// Increment upserts the counter row and adds metric.Count to any
	// existing bucket atomically.
	Increment(ctx context.Context, db *gorm.DB, metric *UsageMetric) error

	Count(ctx context.Context, db *gorm.DB, userID snowflake.ID, feature, period string) (int64, error)
	ListByPeriod(ctx context.Context, db *gorm.DB, userID snowflake.ID, period string) ([]UsageMetric, error)
}

var (
	ErrInvalidFeature = errors.New("invalid_feature")
	ErrInvalidDelta   = errors.New("invalid_delta")
)
