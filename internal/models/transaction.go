package models

import "time"

// PaymentTransaction is the durable record of a single payment attempt.
// It is created pending by charge initiation and moved to exactly one
// terminal status by whichever of the callback handler, the status poller
// or the timeout sweep observes the outcome first.
type PaymentTransaction struct {
	BaseModel
	UserID      string `gorm:"not null;index"`
	PhoneNumber string
	Amount      int64            `gorm:"not null"` // whole KES for the STK rail
	Currency    string           `gorm:"default:'KES'"`
	Tier        SubscriptionTier `gorm:"not null"`
	Period      BillingPeriod    `gorm:"not null"`
	Rail        PaymentRail      `gorm:"not null;index"`

	Status     TransactionStatus `gorm:"default:'pending';index"`
	ResultDesc string

	// Provider correlation. CheckoutRequestID is assigned by the STK rail
	// after initiation; Reference is the locally chosen key for the
	// hosted-checkout rail. Both map to exactly one transaction once set.
	CheckoutRequestID *string `gorm:"uniqueIndex"`
	MerchantRequestID string
	Reference         *string `gorm:"uniqueIndex"`

	ReceiptNumber string
	PaidAt        *time.Time
}
