package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	plandomain "github.com/prompthive/costlens/internal/plan/domain"
)

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.planSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"plans": plans})
}

func (s *Server) GetPlan(c *gin.Context) {
	planType, err := plandomain.ParsePlanType(c.Param("type"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	plan, err := s.planSvc.GetByType(c.Request.Context(), planType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limits := make(map[string]int64, len(plan.Limits))
	for feature := range plan.Limits {
		limits[feature] = plan.Limit(feature)
	}
	respond(c, http.StatusOK, gin.H{
		"plan_type":         plan.Type,
		"name":              plan.Name,
		"price_cents":       plan.PriceCents,
		"billing_period":    plan.BillingPeriod,
		"monthly_credits":   plan.MonthlyCredits,
		"credit_cap":        plan.CreditCap,
		"spend_limit_cents": plan.SpendLimitCents,
		"features":          []string(plan.Features),
		"limits":            limits,
		"active":            plan.Active,
	})
}

func (s *Server) UpsertPlan(c *gin.Context) {
	var req plandomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.planSvc.Upsert(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, resp)
}
