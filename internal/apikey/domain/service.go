package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateRequest) (*SecretResponse, error)
	List(ctx context.Context, userID snowflake.ID) ([]Response, error)
	Revoke(ctx context.Context, userID snowflake.ID, keyID snowflake.ID) error

	// Authenticate resolves a presented key to its record, updating
	// last-used. Revoked and unknown keys both return ErrUnauthorized.
	Authenticate(ctx context.Context, raw string) (*APIKey, error)
}

type CreateRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

type Response struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	Scopes     []string   `json:"scopes"`
	Active     bool       `json:"active"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

type SecretResponse struct {
	ID     string `json:"id"`
	APIKey string `json:"api_key"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]APIKey, error)
	FindByPrefix(ctx context.Context, db *gorm.DB, prefix string) (*APIKey, error)
	Revoke(ctx context.Context, db *gorm.DB, userID, keyID snowflake.ID, at time.Time) (bool, error)
	TouchLastUsed(ctx context.Context, db *gorm.DB, keyID snowflake.ID, at time.Time) error
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidScope = errors.New("invalid_scope")
	ErrNotFound     = errors.New("not_found")
	ErrUnauthorized = errors.New("unauthorized")
)
