package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/prompthive/costlens/internal/user/domain"
	"gorm.io/gorm"
)

// Repository performs the guarded balance updates and ledger writes.
// Every balance mutation is a conditional UPDATE checked through its
// affected-row count; read-modify-write without a guard is not allowed.
type Repository interface {
	FindUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*userdomain.User, error)

	// GrantCredits adds amount to the named bucket ("monthly" or
	// "purchased"). Returns false when the user does not exist or is
	// deleted.
	GrantCredits(ctx context.Context, db *gorm.DB, userID snowflake.ID, bucket string, amount int64, now time.Time) (bool, error)

	// DebitBuckets subtracts the given split, guarded on both buckets
	// still holding at least that much. Returns false when the guard
	// fails (concurrent spend or insufficient funds).
	DebitBuckets(ctx context.Context, db *gorm.DB, userID snowflake.ID, fromMonthly, fromPurchased int64, now time.Time) (bool, error)

	// ApplyMonthlyReset sets the monthly bucket to newMonthly and advances
	// last_credit_reset, guarded on last_credit_reset still equal to
	// prevReset. Returns false when another run already reset the period.
	ApplyMonthlyReset(ctx context.Context, db *gorm.DB, userID snowflake.ID, newMonthly int64, prevReset, resetAt time.Time) (bool, error)

	AppendEntry(ctx context.Context, db *gorm.DB, entry *CreditEntry) error
	ListEntries(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]CreditEntry, error)
	SumEntries(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error)
	SumDebitsSince(ctx context.Context, db *gorm.DB, userID snowflake.ID, since time.Time) (int64, error)
}
