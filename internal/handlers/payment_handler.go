package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"elimu_backend/internal/appErrors"
	"elimu_backend/internal/dto"
	"elimu_backend/internal/services"
	"elimu_backend/internal/validator"
)

// abortValidation maps a field-level validation failure onto the standard
// error envelope.
func abortValidation(c *gin.Context, err error) {
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		appErrors.Abort(c, appErrors.ValidationError(ve.Errors))
		return
	}
	appErrors.HandleError(c, err)
}

type PaymentHandler struct {
	payments *services.PaymentService
	validate *validator.Validator
}

func NewPaymentHandler(payments *services.PaymentService, validate *validator.Validator) *PaymentHandler {
	return &PaymentHandler{payments: payments, validate: validate}
}

// InitiateSTKPush sends a charge prompt to the user's phone.
func (h *PaymentHandler) InitiateSTKPush(c *gin.Context) {
	var req dto.InitiateSTKPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErrors.Abort(c, appErrors.NewBadRequestError("Invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		abortValidation(c, err)
		return
	}

	resp, err := h.payments.InitiateSTKPush(c.Request.Context(), c.GetString("userID"), req)
	if err != nil {
		appErrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// PollTransaction blocks until the transaction resolves or the polling
// budget runs out.
func (h *PaymentHandler) PollTransaction(c *gin.Context) {
	resp, err := h.payments.PollTransaction(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		appErrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetTransaction returns the current state of an owned transaction.
func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	resp, err := h.payments.GetTransaction(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		appErrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// InitializePaystack creates a hosted-checkout payment link.
func (h *PaymentHandler) InitializePaystack(c *gin.Context) {
	var req dto.InitializePaystackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErrors.Abort(c, appErrors.NewBadRequestError("Invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		abortValidation(c, err)
		return
	}

	resp, err := h.payments.InitializePaystack(c.Request.Context(), c.GetString("userID"), req)
	if err != nil {
		appErrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
