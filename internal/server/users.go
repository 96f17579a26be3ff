package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	userdomain "github.com/prompthive/costlens/internal/user/domain"
)

func (s *Server) Signup(c *gin.Context) {
	var req userdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.userSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (s *Server) GetUser(c *gin.Context) {
	userID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, err := s.userSvc.GetByID(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"id":                user.ID.String(),
		"email":             user.Email,
		"name":              user.Name,
		"plan_type":         user.PlanType,
		"monthly_credits":   user.MonthlyCredits,
		"purchased_credits": user.PurchasedCredits,
		"credit_cap":        user.CreditCap,
		"last_credit_reset": user.LastCreditReset,
		"status":            user.Status,
		"created_at":        user.CreatedAt,
	})
}
