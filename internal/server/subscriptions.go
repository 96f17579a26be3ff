package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetSubscription(c *gin.Context) {
	userID, err := s.currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sub, err := s.subSvc.GetByUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if sub == nil {
		// Free accounts have no subscription row.
		respond(c, http.StatusOK, gin.H{"subscription": nil})
		return
	}

	respond(c, http.StatusOK, gin.H{"subscription": gin.H{
		"id":                   sub.ID.String(),
		"plan_type":            sub.PlanType,
		"status":               sub.Status,
		"current_period_end":   sub.CurrentPeriodEnd,
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
		"in_good_standing":     sub.InGoodStanding(s.clock.Now()),
	}})
}

// CancelSubscription marks the caller's subscription to lapse at the
// end of the paid period. Entitlements survive until then.
func (s *Server) CancelSubscription(c *gin.Context) {
	userID, err := s.currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.subSvc.CancelByUser(c.Request.Context(), userID); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"canceled": true})
}
