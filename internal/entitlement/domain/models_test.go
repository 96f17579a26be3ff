package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithinLimit(t *testing.T) {
	tests := []struct {
		name    string
		limit   int64
		used    int64
		allowed bool
	}{
		{"unlimited always allows", -1, 1 << 40, true},
		{"disabled never allows", 0, 0, false},
		{"under limit", 10, 9, true},
		{"at limit", 10, 10, false},
		{"over limit", 10, 11, false},
		{"fresh counter", 10, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, WithinLimit(tc.limit, tc.used))
		})
	}
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, int64(-1), Remaining(-1, 1000))
	assert.Equal(t, int64(0), Remaining(0, 0))
	assert.Equal(t, int64(3), Remaining(10, 7))
	assert.Equal(t, int64(0), Remaining(10, 15))
}
