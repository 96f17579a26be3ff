package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service answers "may this user do this right now" questions against
// the user's plan. Checks are read-only; recording consumption is the
// caller's job after the action succeeds.
type Service interface {
	// CheckFeature compares current-period usage of a countable feature
	// against the plan limit.
	CheckFeature(ctx context.Context, userID snowflake.ID, feature string) (*Decision, error)

	// CheckFlag reports whether the plan carries a binary feature flag.
	CheckFlag(ctx context.Context, userID snowflake.ID, flag string) (*Decision, error)

	// CheckSpendLimit compares credits spent since the last reset,
	// priced in cents, against the plan's spend ceiling.
	CheckSpendLimit(ctx context.Context, userID snowflake.ID) (*Decision, error)
}

var ErrUserNotFound = errors.New("user_not_found")
