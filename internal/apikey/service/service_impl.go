package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/prompthive/costlens/internal/apikey/domain"
	"github.com/prompthive/costlens/internal/apikey/secret"
	"github.com/prompthive/costlens/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeyPrefix      = "cl_live_"
	apiKeySecretBytes = 32

	// The stored lookup prefix covers the literal prefix plus 12 hex
	// characters of the secret, enough to be unique in practice while
	// safe to show in listings.
	apiKeyPrefixLen = len(apiKeyPrefix) + 12
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  apikeydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  apikeydomain.Repository
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, userID snowflake.ID, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []string{apikeydomain.ScopeAPI}
	}
	for _, scope := range scopes {
		if scope != apikeydomain.ScopeAPI && scope != apikeydomain.ScopeAdmin {
			return nil, apikeydomain.ErrInvalidScope
		}
	}

	plain, err := generateAPIKey()
	if err != nil {
		return nil, err
	}
	hash, err := secret.Hash(plain)
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Name:      name,
		KeyHash:   hash,
		KeyPrefix: plain[:apiKeyPrefixLen],
		Scopes:    scopes,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.log.Info("api key created",
		zap.String("user_id", userID.String()),
		zap.String("key_id", key.ID.String()),
	)
	return &apikeydomain.SecretResponse{ID: key.ID.String(), APIKey: plain}, nil
}

func (s *Service) List(ctx context.Context, userID snowflake.ID) ([]apikeydomain.Response, error) {
	keys, err := s.repo.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]apikeydomain.Response, 0, len(keys))
	for i := range keys {
		resp = append(resp, toResponse(&keys[i]))
	}
	return resp, nil
}

func (s *Service) Revoke(ctx context.Context, userID snowflake.ID, keyID snowflake.ID) error {
	ok, err := s.repo.Revoke(ctx, s.db, userID, keyID, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return apikeydomain.ErrNotFound
	}

	s.log.Info("api key revoked",
		zap.String("user_id", userID.String()),
		zap.String("key_id", keyID.String()),
	)
	return nil
}

func (s *Service) Authenticate(ctx context.Context, raw string) (*apikeydomain.APIKey, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < apiKeyPrefixLen || !strings.HasPrefix(raw, apiKeyPrefix) {
		return nil, apikeydomain.ErrUnauthorized
	}

	key, err := s.repo.FindByPrefix(ctx, s.db, raw[:apiKeyPrefixLen])
	if err != nil {
		return nil, err
	}
	if key == nil || !key.Active() || !secret.Verify(raw, key.KeyHash) {
		return nil, apikeydomain.ErrUnauthorized
	}

	if err := s.repo.TouchLastUsed(ctx, s.db, key.ID, s.clock.Now()); err != nil {
		s.log.Warn("touch last used failed", zap.Error(err))
	}
	return key, nil
}

func toResponse(key *apikeydomain.APIKey) apikeydomain.Response {
	return apikeydomain.Response{
		ID:         key.ID.String(),
		Name:       key.Name,
		KeyPrefix:  key.KeyPrefix,
		Scopes:     append([]string(nil), key.Scopes...),
		Active:     key.Active(),
		LastUsedAt: key.LastUsedAt,
		CreatedAt:  key.CreatedAt,
	}
}

func generateAPIKey() (string, error) {
	raw := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(raw), nil
}
