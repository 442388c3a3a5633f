package appErrors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies an application error class.
type ErrorCode string

// AppError is the application error structure.
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Details  interface{} `json:"details,omitempty"`
	Err      error       `json:"-"`
	HTTPCode int         `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, message string, httpCode int) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		HTTPCode: httpCode,
	}
}

// Wrap attaches an underlying error to a new AppError.
func Wrap(err error, code ErrorCode, message string, httpCode int) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Err:      err,
		HTTPCode: httpCode,
	}
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

func (e *AppError) WithError(err error) *AppError {
	clone := *e
	clone.Err = err
	return &clone
}

// WithMessage replaces the user-facing message, keeping the code.
func (e *AppError) WithMessage(message string) *AppError {
	clone := *e
	clone.Message = message
	return &clone
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	type alias struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}
	return json.Marshal(&alias{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}

// Is wraps the standard errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As wraps the standard errors.As.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Predefined errors
var (
	// Authentication
	ErrInvalidCredentials = New(CodeInvalidCredentials, "Invalid email or password", http.StatusUnauthorized)
	ErrUnauthorized       = New(CodeUnauthorized, "Authentication required", http.StatusUnauthorized)
	ErrForbidden          = New(CodeForbidden, "Access denied", http.StatusForbidden)
	ErrInvalidToken       = New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)

	// Users
	ErrUserNotFound = New(CodeUserNotFound, "User not found", http.StatusNotFound)
	ErrWeakPassword = New(CodeWeakPassword, "Password must be at least 8 characters", http.StatusBadRequest)

	// Validation
	ErrValidationFailed = New(CodeValidationFailed, "Validation failed", http.StatusBadRequest)
	ErrInvalidPhone     = New(CodeInvalidPhone, "Phone number is not a valid Kenyan MSISDN", http.StatusBadRequest)
	ErrInvalidAmount    = New(CodeInvalidAmount, "Payment amount is out of bounds", http.StatusBadRequest)

	// Payments
	ErrProviderAuth        = New(CodeProviderAuth, "Payment provider authentication failed", http.StatusBadGateway)
	ErrProviderRejected    = New(CodeProviderRejected, "Payment provider rejected the charge", http.StatusBadGateway)
	ErrProviderUnavailable = New(CodeProviderUnavailable, "Payment provider is unreachable", http.StatusBadGateway)
	ErrCorrelationNotFound = New(CodeCorrelationNotFound, "No transaction matches the callback reference", http.StatusNotFound)
	ErrSignatureInvalid    = New(CodeSignatureInvalid, "Callback signature verification failed", http.StatusUnauthorized)
	ErrRateLimited         = New(CodeRateLimited, "Too many callback attempts for this reference", http.StatusTooManyRequests)
	ErrPollTimeout         = New(CodePollTimeout, "Payment confirmation timed out", http.StatusGatewayTimeout)
	ErrTransactionNotFound = New(CodeTransactionNotFound, "Transaction not found", http.StatusNotFound)
	ErrTransactionFinal    = New(CodeTransactionFinal, "Transaction is already in a terminal status", http.StatusConflict)

	// Subscriptions
	ErrSubscriptionCancelled = New(CodeSubscriptionCancelled, "Subscription is already cancelled", http.StatusBadRequest)
	ErrSchoolNotFound        = New(CodeSchoolNotFound, "School not found", http.StatusNotFound)
	ErrSchoolSlotsExceeded   = New(CodeSchoolSlotsExceeded, "School member slots exhausted", http.StatusForbidden)
	ErrCascadeFailure        = New(CodeCascadeFailure, "School downgrade cascade failed", http.StatusInternalServerError)
)

// Helpers for building errors with details
func ValidationError(details interface{}) *AppError {
	return ErrValidationFailed.WithDetails(details)
}

func NotFound(resource string) *AppError {
	return New(CodeUserNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func InternalError(err error) *AppError {
	return Wrap(err, CodeInternalError, "Internal server error", http.StatusInternalServerError)
}

func DatabaseError(err error) *AppError {
	return Wrap(err, CodeDatabaseError, "Database operation failed", http.StatusInternalServerError)
}

func NewBadRequestError(message string) *AppError {
	return New(CodeValidationFailed, message, http.StatusBadRequest)
}

func NewUnauthorizedError(message string) *AppError {
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}
