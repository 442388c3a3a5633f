package appErrors

// Error codes grouped by domain
const (
	// Authentication and authorization
	CodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeForbidden          ErrorCode = "FORBIDDEN"
	CodeInvalidToken       ErrorCode = "INVALID_TOKEN"

	// Validation
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeInvalidPhone     ErrorCode = "INVALID_PHONE"
	CodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	CodeWeakPassword     ErrorCode = "WEAK_PASSWORD"

	// Resources
	CodeUserNotFound        ErrorCode = "USER_NOT_FOUND"
	CodeTransactionNotFound ErrorCode = "TRANSACTION_NOT_FOUND"
	CodeSchoolNotFound      ErrorCode = "SCHOOL_NOT_FOUND"

	// Payments
	CodeProviderAuth        ErrorCode = "PROVIDER_AUTH_FAILED"
	CodeProviderRejected    ErrorCode = "PROVIDER_REJECTED"
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeCorrelationNotFound ErrorCode = "CORRELATION_NOT_FOUND"
	CodeSignatureInvalid    ErrorCode = "SIGNATURE_INVALID"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodePollTimeout         ErrorCode = "POLL_TIMEOUT"
	CodeTransactionFinal    ErrorCode = "TRANSACTION_FINAL"

	// Subscriptions
	CodeSubscriptionCancelled ErrorCode = "SUBSCRIPTION_CANCELLED"
	CodeSchoolSlotsExceeded   ErrorCode = "SCHOOL_SLOTS_EXCEEDED"
	CodeCascadeFailure        ErrorCode = "CASCADE_FAILURE"

	// System
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
	CodeDatabaseError        ErrorCode = "DATABASE_ERROR"
	CodeExternalServiceError ErrorCode = "EXTERNAL_SERVICE_ERROR"
)
