package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/prompthive/costlens/internal/apikey/domain"
	"github.com/prompthive/costlens/internal/userctx"
)

const (
	contextAPIKeyKey = "api_key"
	contextUserIDKey = "user_id"
)

// APIKeyRequired authenticates requests with a bearer API key and binds
// the key's user onto the request context.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		key, err := s.apiKeySvc.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextAPIKeyKey, key)
		c.Set(contextUserIDKey, int64(key.UserID))
		c.Request = c.Request.WithContext(
			userctx.WithUserID(c.Request.Context(), int64(key.UserID)),
		)
		c.Next()
	}
}

// AdminRequired gates the admin surface behind admin-scoped keys.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := c.Value(contextAPIKeyKey).(*apikeydomain.APIKey)
		if !ok || key == nil || !key.HasScope(apikeydomain.ScopeAdmin) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// RateLimited throttles metered endpoints per user.
func (s *Server) RateLimited() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.requestLimiter == nil {
			c.Next()
			return
		}

		userID, err := s.currentUserID(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		result, err := s.requestLimiter.Allow(c.Request.Context(), userID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", result.RetryAfter.Round(retryAfterGranularity).String())
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
