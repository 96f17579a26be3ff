package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is the single source of truth for a user's spendable balance.
type Service interface {
	// GetCreditUsage reports the current balance and consumption since the
	// last monthly reset. Read-only.
	GetCreditUsage(ctx context.Context, userID snowflake.ID) (*Usage, error)

	// AddCredits appends a positive ledger entry and increments the bucket
	// the entry type maps to, in one transaction. Returns the new total.
	AddCredits(ctx context.Context, userID snowflake.ID, amount int64, entryType EntryType, description string) (int64, error)

	// DebitCredits spends credits, monthly bucket first, then purchased.
	// The debit and its ledger entry commit together or not at all.
	DebitCredits(ctx context.Context, userID snowflake.ID, amount int64, description string) (*DebitResult, error)

	// CalculateTokenCost prices a model call in credits. Pure and
	// deterministic for a given rate card.
	CalculateTokenCost(inputTokens, outputTokens int64, model string) int64

	// ResetMonthlyCredits applies the user's monthly allotment if the last
	// reset falls outside the current billing period. Running it twice in
	// one period is a no-op. Returns whether a reset was applied.
	ResetMonthlyCredits(ctx context.Context, userID snowflake.ID, now time.Time) (bool, error)

	// History lists recent ledger entries, newest first.
	History(ctx context.Context, userID snowflake.ID, limit int) ([]CreditEntry, error)

	// SpentSince sums debited credits since a point in time.
	SpentSince(ctx context.Context, userID snowflake.ID, since time.Time) (int64, error)

	// Reconcile recomputes the ledger sum and compares it with the stored
	// balance fields.
	Reconcile(ctx context.Context, userID snowflake.ID) (*ReconcileReport, error)
}

type Usage struct {
	Used          int64     `json:"used"`
	Total         int64     `json:"total"`
	Percentage    float64   `json:"percentage"`
	NextResetDate time.Time `json:"next_reset_date"`
}

type DebitResult struct {
	Remaining     int64 `json:"remaining"`
	FromMonthly   int64 `json:"from_monthly"`
	FromPurchased int64 `json:"from_purchased"`
}

type ReconcileReport struct {
	UserID        string `json:"user_id"`
	LedgerBalance int64  `json:"ledger_balance"`
	StoredBalance int64  `json:"stored_balance"`
	Drift         int64  `json:"drift"`
}

// InsufficientCreditsError is a caller-handleable denial, not a fault. It
// carries enough detail for the caller to render an upgrade prompt.
type InsufficientCreditsError struct {
	CurrentCredits  int64 `json:"current_credits"`
	RequiredCredits int64 `json:"required_credits"`
	MissingCredits  int64 `json:"missing_credits"`
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: have %d, need %d", e.CurrentCredits, e.RequiredCredits)
}

var (
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidEntryType = errors.New("invalid_entry_type")
	ErrUserNotFound     = errors.New("user_not_found")
	ErrConcurrentUpdate = errors.New("concurrent_balance_update")
)
