package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/prompthive/costlens/internal/usage/domain"
)

type trackUsageRequest struct {
	Feature string `json:"feature"`
	Delta   int64  `json:"delta"`
}

func (s *Server) TrackUsage(c *gin.Context) {
	userID, err := s.currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req trackUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Delta == 0 {
		req.Delta = 1
	}

	if err := s.usageSvc.Track(c.Request.Context(), userID, req.Feature, req.Delta); err != nil {
		AbortWithError(c, err)
		return
	}

	count, err := s.usageSvc.CurrentCount(c.Request.Context(), userID, req.Feature, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"feature": req.Feature, "count": count})
}

func (s *Server) GetFeatureUsage(c *gin.Context) {
	userID, err := s.currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	feature := c.Param("feature")
	now := s.clock.Now()
	count, err := s.usageSvc.CurrentCount(c.Request.Context(), userID, feature, now)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"feature": feature,
		"period":  usagedomain.MonthPeriod(now),
		"count":   count,
	})
}

func (s *Server) GetUsageSummary(c *gin.Context) {
	userID, err := s.currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	now := s.clock.Now()
	summary, err := s.usageSvc.Summary(c.Request.Context(), userID, now)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"period":   usagedomain.MonthPeriod(now),
		"counters": summary,
	})
}
