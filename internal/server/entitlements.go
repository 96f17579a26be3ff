package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) CheckEntitlement(c *gin.Context) {
	userID, err := s.currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	feature := c.Param("feature")
	var decision any
	if c.Query("kind") == "flag" {
		decision, err = s.entitlementSvc.CheckFlag(c.Request.Context(), userID, feature)
	} else {
		decision, err = s.entitlementSvc.CheckFeature(c.Request.Context(), userID, feature)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, decision)
}

func (s *Server) CheckSpendLimit(c *gin.Context) {
	userID, err := s.currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	decision, err := s.entitlementSvc.CheckSpendLimit(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, decision)
}
