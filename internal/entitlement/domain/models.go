// Package domain contains plan entitlement checks.
package domain

import (
	"fmt"

	plandomain "github.com/prompthive/costlens/internal/plan/domain"
)

// Decision is the outcome of an entitlement check. Allowed carries the
// verdict; the remaining fields exist so callers can render quota state
// without a second lookup.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Feature   string `json:"feature"`
	Limit     int64  `json:"limit"`
	Used      int64  `json:"used"`
	Remaining int64  `json:"remaining"`
	Reason    string `json:"reason,omitempty"`
}

const (
	ReasonLimitReached      = "limit_reached"
	ReasonFeatureDisabled   = "feature_not_in_plan"
	ReasonSpendLimitReached = "spend_limit_reached"
)

// LimitExceededError is a caller-handleable denial carrying the quota
// state at the time of the check.
type LimitExceededError struct {
	Feature string `json:"feature"`
	Limit   int64  `json:"limit"`
	Used    int64  `json:"used"`
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("limit exceeded for %s: used %d of %d", e.Feature, e.Used, e.Limit)
}

// WithinLimit applies the shared limit semantics: -1 is unlimited, 0 is
// disabled, anything else admits usage strictly below the limit.
func WithinLimit(limit, used int64) bool {
	switch limit {
	case plandomain.LimitUnlimited:
		return true
	case plandomain.LimitDisabled:
		return false
	default:
		return used < limit
	}
}

// Remaining reports how much quota is left, -1 for unlimited.
func Remaining(limit, used int64) int64 {
	if limit == plandomain.LimitUnlimited {
		return plandomain.LimitUnlimited
	}
	left := limit - used
	if left < 0 {
		return 0
	}
	return left
}
