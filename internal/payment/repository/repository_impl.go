package repository

import (
	"context"

	"github.com/prompthive/costlens/internal/payment/domain"
	pkgdb "github.com/prompthive/costlens/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// RecordEvent claims the provider event id. Returns false when another
// delivery of the same event already claimed it.
func (r *repo) RecordEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) (bool, error) {
	err := db.WithContext(ctx).Create(event).Error
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReleaseEvent drops a claim so the provider's retry can be processed
// again after a failed apply.
func (r *repo) ReleaseEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) error {
	return db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Delete(&domain.WebhookEvent{}).Error
}
