package handler

import (
	"errors"
	"net/http"
	"strconv"

	"dealdesk/internal/middleware"
	"dealdesk/internal/repository"
	"dealdesk/pkg/stripeapi"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type UserHandler struct {
	userRepo *repository.UserRepository
	stripe   stripeapi.API
}

func NewUserHandler(userRepo *repository.UserRepository, stripe stripeapi.API) *UserHandler {
	return &UserHandler{userRepo: userRepo, stripe: stripe}
}

// Me returns the authenticated user's profile.
func (h *UserHandler) Me(c *gin.Context) {
	userID := middleware.GetUserID(c)
	u, err := h.userRepo.GetByID(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// CreateConnectAccount provisions a Stripe Connect express account for the
// caller so withdrawals can be paid out. Idempotent: a second call returns
// the existing account id.
func (h *UserHandler) CreateConnectAccount(c *gin.Context) {
	userID := middleware.GetUserID(c)
	u, err := h.userRepo.GetByID(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if u.ConnectAccountID != "" {
		c.JSON(http.StatusOK, gin.H{"account_id": u.ConnectAccountID, "existing": true})
		return
	}
	acct, err := h.stripe.CreateAccount(c.Request.Context(), u.Email)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not create connect account"})
		return
	}
	if err := h.userRepo.SetConnectAccountID(userID, acct.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save account"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"account_id": acct.ID})
}

// VerifyAccount reports whether a user's connected account can receive
// payouts yet.
func (h *UserHandler) VerifyAccount(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	u, err := h.userRepo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load user"})
		return
	}
	if u.ConnectAccountID == "" {
		c.JSON(http.StatusOK, gin.H{"payouts_enabled": false, "has_account": false})
		return
	}
	acct, err := h.stripe.RetrieveAccount(c.Request.Context(), u.ConnectAccountID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not retrieve account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payouts_enabled": acct.PayoutsEnabled,
		"has_account":     true,
		"account_id":      acct.ID,
	})
}
