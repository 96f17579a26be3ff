package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	creditdomain "github.com/prompthive/costlens/internal/credit/domain"
	entitlementdomain "github.com/prompthive/costlens/internal/entitlement/domain"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
	"go.uber.org/zap"
)

type runRequest struct {
	Feature      string `json:"feature"`
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	Description  string `json:"description"`
}

// RunMetered is the billing path for one model call: check the plan
// entitlement, price the tokens, debit the ledger, then record usage.
// The debit and its ledger entry are atomic; the usage counter is
// incremented after the debit commits, so a failed debit never counts.
func (s *Server) RunMetered(c *gin.Context) {
	userID, err := s.currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Feature == "" {
		req.Feature = plandomain.FeatureTestRuns
	}

	ctx := c.Request.Context()

	decision, err := s.entitlementSvc.CheckFeature(ctx, userID, req.Feature)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !decision.Allowed {
		AbortWithError(c, &entitlementdomain.LimitExceededError{
			Feature: decision.Feature,
			Limit:   decision.Limit,
			Used:    decision.Used,
		})
		return
	}

	cost := s.creditSvc.CalculateTokenCost(req.InputTokens, req.OutputTokens, req.Model)

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("%s run (%d in / %d out tokens)", req.Model, req.InputTokens, req.OutputTokens)
	}

	var debit *creditdomain.DebitResult
	if cost > 0 {
		debit, err = s.creditSvc.DebitCredits(ctx, userID, cost, description)
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	if err := s.usageSvc.Track(ctx, userID, req.Feature, 1); err != nil {
		s.log.Warn("usage tracking failed after debit",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}

	resp := gin.H{
		"feature": req.Feature,
		"model":   req.Model,
		"cost":    cost,
	}
	if debit != nil {
		resp["remaining"] = debit.Remaining
		resp["from_monthly"] = debit.FromMonthly
		resp["from_purchased"] = debit.FromPurchased
	}
	respond(c, http.StatusOK, resp)
}
