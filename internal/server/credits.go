package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	creditdomain "github.com/prompthive/costlens/internal/credit/domain"
	paymentdomain "github.com/prompthive/costlens/internal/payment/domain"
)

func (s *Server) GetCreditUsage(c *gin.Context) {
	userID, err := s.currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	usage, err := s.creditSvc.GetCreditUsage(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, usage)
}

func (s *Server) GetCreditHistory(c *gin.Context) {
	userID, err := s.currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	entries, err := s.creditSvc.History(c.Request.Context(), userID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		items = append(items, gin.H{
			"id":            e.ID.String(),
			"amount":        e.Amount,
			"type":          e.Type,
			"description":   e.Description,
			"balance_after": e.BalanceAfter,
			"created_at":    e.CreatedAt,
		})
	}
	respond(c, http.StatusOK, gin.H{"entries": items})
}

type checkoutRequest struct {
	PlanType string `json:"plan_type"`
	Credits  int64  `json:"credits"`
}

// CreateCheckout opens a hosted checkout session, either a plan upgrade
// or a one-time credit pack depending on the request body.
func (s *Server) CreateCheckout(c *gin.Context) {
	userID, err := s.currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var session *paymentdomain.CheckoutSession
	if req.Credits > 0 {
		session, err = s.paymentSvc.CreateCreditCheckout(c.Request.Context(), userID, req.Credits)
	} else {
		session, err = s.paymentSvc.CreateCheckoutSession(c.Request.Context(), userID, req.PlanType)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, session)
}

type grantRequest struct {
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

func (s *Server) GrantCredits(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID, err := parseID(req.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entryType := creditdomain.EntryType(req.Type)
	if entryType == "" {
		entryType = creditdomain.EntryTypeBonus
	}
	description := req.Description
	if description == "" {
		description = "administrative grant"
	}

	total, err := s.creditSvc.AddCredits(c.Request.Context(), userID, req.Amount, entryType, description)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"total_credits": total})
}

// ResetUserCredits is the manual ops trigger for one user's monthly
// reset. The same period gate applies, so an early call is a no-op.
func (s *Server) ResetUserCredits(c *gin.Context) {
	userID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	applied, err := s.creditSvc.ResetMonthlyCredits(c.Request.Context(), userID, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"reset": applied})
}

func (s *Server) ReconcileUser(c *gin.Context) {
	userID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	report, err := s.creditSvc.Reconcile(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, report)
}
