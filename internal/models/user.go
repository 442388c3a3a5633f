package models

import "time"

type User struct {
	BaseModel
	FullName     string   `gorm:"not null"`
	Email        string   `gorm:"uniqueIndex;not null"`
	PhoneNumber  string
	PasswordHash string   `gorm:"not null"`
	Role         UserRole `gorm:"default:'student'"`

	// Subscription state lives on the account record; it is mutated only
	// by the subscription service and the expiry sweep.
	Tier               SubscriptionTier   `gorm:"default:'free'"`
	SubscriptionStatus SubscriptionStatus `gorm:"default:'active'"`
	SubscriptionExpiry *time.Time
	LastPaymentAt      *time.Time

	SchoolID   *string     `gorm:"index"`
	SchoolRole *SchoolRole `gorm:"type:varchar(16)"`
}

// HasValidSubscription reports whether the account is entitled to gated
// features right now. A cancelled subscription keeps access until its
// natural expiry; expired-but-not-yet-swept records fail this check.
func (u *User) HasValidSubscription(now time.Time) bool {
	switch u.SubscriptionStatus {
	case SubscriptionStatusActive, SubscriptionStatusTrial, SubscriptionStatusCancelled:
	default:
		return false
	}
	if u.Tier == TierFree {
		return u.SubscriptionStatus != SubscriptionStatusCancelled
	}
	return u.SubscriptionExpiry != nil && u.SubscriptionExpiry.After(now)
}
