package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/prompthive/costlens/internal/usage/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, metric *domain.UsageMetric) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"},
				{Name: "feature"},
				{Name: "period"},
			},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"count":      gorm.Expr("count + ?", metric.Count),
				"updated_at": metric.UpdatedAt,
			}),
		}).
		Create(metric).Error
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, userID snowflake.ID, feature, period string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(count), 0)
		 FROM usage_metrics
		 WHERE user_id = ? AND feature = ? AND period = ?`,
		userID,
		feature,
		period,
	).Scan(&count).Error
	return count, err
}

func (r *repo) ListByPeriod(ctx context.Context, db *gorm.DB, userID snowflake.ID, period string) ([]domain.UsageMetric, error) {
	var metrics []domain.UsageMetric
	err := db.WithContext(ctx).
		Model(&domain.UsageMetric{}).
		Where("user_id = ? AND period = ?", userID, period).
		Order("feature ASC").
		Find(&metrics).Error
	if err != nil {
		return nil, err
	}
	return metrics, nil
}
