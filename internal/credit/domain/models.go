// Package domain contains the credit ledger models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EntryType classifies a credit ledger entry.
type EntryType string

const (
	EntryTypePurchase       EntryType = "PURCHASE"
	EntryTypeMonthlyRenewal EntryType = "MONTHLY_RENEWAL"
	EntryTypeUsage          EntryType = "USAGE"
	EntryTypeBonus          EntryType = "BONUS"
	EntryTypeRefund         EntryType = "REFUND"
)

// CreditEntry is an immutable ledger row. Amount is signed: negative for
// debits, positive for grants. Entries are never mutated or deleted; the
// amount always equals the balance delta it produced, so the entry sum for
// a user reconciles exactly with the stored balance fields.
type CreditEntry struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	UserID       snowflake.ID `gorm:"not null;index:idx_credit_entries_user_created,priority:1"`
	Amount       int64        `gorm:"not null"`
	Type         EntryType    `gorm:"column:entry_type;type:text;not null"`
	Description  string       `gorm:"type:text;not null"`
	BalanceAfter int64        `gorm:"column:balance_after;not null"`
	CreatedAt    time.Time    `gorm:"not null;index:idx_credit_entries_user_created,priority:2"`
}

// TableName sets the database table name.
func (CreditEntry) TableName() string { return "credit_entries" }

// GrantBucket returns which balance bucket a positive entry of this type
// lands in: monthly for renewals, purchased for everything else.
func (t EntryType) GrantBucket() string {
	if t == EntryTypeMonthlyRenewal {
		return "monthly"
	}
	return "purchased"
}
