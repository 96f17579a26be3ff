package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prompthive/costlens/internal/credit/domain"
	userdomain "github.com/prompthive/costlens/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*userdomain.User, error) {
	var u userdomain.User
	err := db.WithContext(ctx).
		Model(&userdomain.User{}).
		Where("id = ?", userID).
		Take(&u).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *repo) GrantCredits(ctx context.Context, db *gorm.DB, userID snowflake.ID, bucket string, amount int64, now time.Time) (bool, error) {
	column := ""
	switch bucket {
	case "monthly":
		column = "monthly_credits"
	case "purchased":
		column = "purchased_credits"
	default:
		return false, errors.New("unknown credit bucket " + bucket)
	}

	result := db.WithContext(ctx).Exec(
		`UPDATE users
		 SET `+column+` = `+column+` + ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		amount,
		now,
		userID,
		userdomain.UserStatusDeleted,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) DebitBuckets(ctx context.Context, db *gorm.DB, userID snowflake.ID, fromMonthly, fromPurchased int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE users
		 SET monthly_credits = monthly_credits - ?,
		     purchased_credits = purchased_credits - ?,
		     updated_at = ?
		 WHERE id = ?
		   AND status = ?
		   AND monthly_credits >= ?
		   AND purchased_credits >= ?`,
		fromMonthly,
		fromPurchased,
		now,
		userID,
		userdomain.UserStatusActive,
		fromMonthly,
		fromPurchased,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ApplyMonthlyReset(ctx context.Context, db *gorm.DB, userID snowflake.ID, newMonthly int64, prevReset, resetAt time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE users
		 SET monthly_credits = ?, last_credit_reset = ?, updated_at = ?
		 WHERE id = ? AND last_credit_reset = ?`,
		newMonthly,
		resetAt,
		resetAt,
		userID,
		prevReset,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) AppendEntry(ctx context.Context, db *gorm.DB, entry *domain.CreditEntry) error {
	if entry == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]domain.CreditEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []domain.CreditEntry
	err := db.WithContext(ctx).
		Model(&domain.CreditEntry{}).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) SumEntries(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM credit_entries WHERE user_id = ?`,
		userID,
	).Scan(&total).Error
	return total, err
}

func (r *repo) SumDebitsSince(ctx context.Context, db *gorm.DB, userID snowflake.ID, since time.Time) (int64, error) {
	var spent int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(-amount), 0)
		 FROM credit_entries
		 WHERE user_id = ? AND amount < 0 AND created_at >= ?`,
		userID,
		since,
	).Scan(&spent).Error
	return spent, err
}
