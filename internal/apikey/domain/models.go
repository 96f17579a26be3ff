// Package domain contains API key credentials and their hashing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// Scopes carried by keys. A key with ScopeAdmin may also call the admin
// surface.
const (
	ScopeAPI   = "api"
	ScopeAdmin = "admin"
)

// APIKey stores hashed API credentials for one user. Only the hash is
// persisted; the plaintext is shown once at creation. Presented keys
// are located by their unique prefix and checked against the hash.
type APIKey struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	UserID     snowflake.ID   `gorm:"not null;index:idx_api_keys_user"`
	Name       string         `gorm:"type:text;not null"`
	KeyHash    string         `gorm:"column:key_hash;type:text;not null"`
	KeyPrefix  string         `gorm:"column:key_prefix;type:text;not null;uniqueIndex:ux_api_keys_prefix"`
	Scopes     pq.StringArray `gorm:"type:text[];not null"`
	LastUsedAt *time.Time     `gorm:"column:last_used_at"`
	RevokedAt  *time.Time     `gorm:"column:revoked_at"`
	CreatedAt  time.Time      `gorm:"not null"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// Active reports whether the key may still authenticate.
func (k APIKey) Active() bool { return k.RevokedAt == nil }

// HasScope reports whether the key carries the scope.
func (k APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
