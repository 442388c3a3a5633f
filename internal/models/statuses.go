package models

type UserRole string
type SubscriptionTier string
type SubscriptionStatus string
type SchoolRole string
type TransactionStatus string
type PaymentRail string
type BillingPeriod string

const (
	UserRoleStudent UserRole = "student"
	UserRoleTutor   UserRole = "tutor"
	UserRoleAdmin   UserRole = "admin"

	TierFree   SubscriptionTier = "free"
	TierPro    SubscriptionTier = "pro"
	TierSchool SubscriptionTier = "school"

	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"

	SchoolRoleAdmin  SchoolRole = "admin"
	SchoolRoleMember SchoolRole = "member"

	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
	TransactionTimeout   TransactionStatus = "timeout"

	RailMpesa    PaymentRail = "mpesa"
	RailPaystack PaymentRail = "paystack"

	PeriodMonthly BillingPeriod = "monthly"
	PeriodAnnual  BillingPeriod = "annual"
)

// Terminal reports whether a transaction status permits no further transition.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case TransactionCompleted, TransactionFailed, TransactionCancelled, TransactionTimeout:
		return true
	}
	return false
}
