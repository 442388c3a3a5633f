package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"elimu_backend/internal/appErrors"
	"elimu_backend/internal/services"
)

type SubscriptionHandler struct {
	subscriptions *services.SubscriptionService
}

func NewSubscriptionHandler(subscriptions *services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

// GetSubscription returns the caller's entitlement, lazily expiring it if
// the expiry has passed.
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	info, err := h.subscriptions.CurrentSubscription(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		appErrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// CancelSubscription stops renewal intent; access runs to the paid expiry.
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	if err := h.subscriptions.Cancel(c.Request.Context(), c.GetString("userID")); err != nil {
		appErrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Subscription cancelled; access continues until expiry"})
}

// EnrollMember adds a user to the admin's school group, subject to slots.
func (h *SubscriptionHandler) EnrollMember(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		appErrors.Abort(c, appErrors.NewBadRequestError("Invalid request body"))
		return
	}

	if err := h.subscriptions.EnrollMemberByAdmin(c.Request.Context(), c.GetString("userID"), req.UserID); err != nil {
		appErrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member enrolled"})
}
