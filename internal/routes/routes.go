package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"elimu_backend/internal/handlers"
	"elimu_backend/internal/middleware"
)

type Handlers struct {
	Payments      *handlers.PaymentHandler
	Webhooks      *handlers.WebhookHandler
	Subscriptions *handlers.SubscriptionHandler
}

func RegisterRoutes(r *gin.Engine, h Handlers) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	// Provider callbacks are unauthenticated; the body signature is the
	// credential.
	webhooks := api.Group("/webhooks")
	{
		webhooks.POST("/mpesa", h.Webhooks.MpesaCallback)
		webhooks.POST("/paystack", h.Webhooks.PaystackWebhook)
	}

	authed := api.Group("")
	authed.Use(middleware.JWTAuthMiddleware())

	payments := authed.Group("/payments")
	{
		payments.POST("/mpesa/initiate", h.Payments.InitiateSTKPush)
		payments.POST("/paystack/initialize", h.Payments.InitializePaystack)
		payments.POST("/:id/poll", h.Payments.PollTransaction)
		payments.GET("/:id", h.Payments.GetTransaction)
	}

	subscription := authed.Group("/subscription")
	{
		subscription.GET("", h.Subscriptions.GetSubscription)
		subscription.POST("/cancel", h.Subscriptions.CancelSubscription)
		subscription.POST("/school/members", h.Subscriptions.EnrollMember)
	}
}
