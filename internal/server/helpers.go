package server

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const retryAfterGranularity = time.Second

func (s *Server) currentUserID(c *gin.Context) (snowflake.ID, error) {
	raw := c.GetInt64(contextUserIDKey)
	if raw == 0 {
		return 0, ErrUnauthorized
	}
	return snowflake.ID(raw), nil
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, newValidationError("id", "invalid_id", "invalid identifier")
	}
	return id, nil
}
