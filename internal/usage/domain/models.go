// Package domain contains the usage metering models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageMetric is a per-user counter bucketed by feature and calendar
// period. Counters only ever increase within a bucket; a new period
// starts a fresh row, so history is preserved without a reset job.
type UsageMetric struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex:ux_usage_user_feature_period,priority:1"`
	Feature   string       `gorm:"type:text;not null;uniqueIndex:ux_usage_user_feature_period,priority:2"`
	Period    string       `gorm:"type:text;not null;uniqueIndex:ux_usage_user_feature_period,priority:3"`
	Count     int64        `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (UsageMetric) TableName() string { return "usage_metrics" }

// MonthPeriod formats a time into the monthly bucket key.
func MonthPeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}
