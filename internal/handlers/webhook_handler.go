package handlers

import (
	"github.com/gin-gonic/gin"

	"elimu_backend/internal/logger"
	"elimu_backend/internal/services"
)

// WebhookHandler exposes the provider callback endpoints. These are public:
// authenticity comes from the body signature, not from a session.
type WebhookHandler struct {
	payments *services.PaymentService
}

func NewWebhookHandler(payments *services.PaymentService) *WebhookHandler {
	return &WebhookHandler{payments: payments}
}

// MpesaCallback receives the asynchronous STK push outcome.
func (h *WebhookHandler) MpesaCallback(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		logger.CtxWithError(c.Request.Context(), "failed to read callback body", err)
		c.JSON(400, gin.H{"ResultCode": 1, "ResultDesc": "Unreadable body"})
		return
	}

	code, ack := h.payments.ResolveMpesaCallback(c.Request.Context(), raw, c.GetHeader("X-Callback-Signature"))
	c.JSON(code, ack)
}

// PaystackWebhook receives hosted-checkout charge events.
func (h *WebhookHandler) PaystackWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		logger.CtxWithError(c.Request.Context(), "failed to read webhook body", err)
		c.JSON(400, gin.H{"status": "unreadable body"})
		return
	}

	code, body := h.payments.ResolvePaystackWebhook(c.Request.Context(), raw, c.GetHeader("x-paystack-signature"))
	c.JSON(code, body)
}
