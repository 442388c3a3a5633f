package appErrors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"elimu_backend/internal/logger"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error *AppError `json:"error"`
}

// GinErrorHandler handles errors for Gin handlers.
type GinErrorHandler struct {
	Debug bool
}

func (h *GinErrorHandler) HandleGinError(c *gin.Context, err *AppError) {
	if err.HTTPCode >= 500 {
		logger.CtxWithError(c.Request.Context(), "server error", err)
	}

	c.JSON(err.HTTPCode, ErrorResponse{Error: err})
}

// HandleError writes an error response for a Gin context. Unknown error
// types are wrapped as internal errors so no stack detail leaks out.
func HandleError(c *gin.Context, err error) {
	var appErr *AppError
	if !As(err, &appErr) {
		appErr = InternalError(err)
	}

	handler := &GinErrorHandler{}
	handler.HandleGinError(c, appErr)
}

// Abort stops the chain with the given error.
func Abort(c *gin.Context, err *AppError) {
	c.AbortWithStatusJSON(err.HTTPCode, ErrorResponse{Error: err})
}

// AbortUnauthorized is a shortcut used by middleware.
func AbortUnauthorized(c *gin.Context, message string) {
	Abort(c, New(CodeUnauthorized, message, http.StatusUnauthorized))
}
