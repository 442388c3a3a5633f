package dto

import "time"

type SubscriptionInfo struct {
	Tier          string     `json:"tier"`
	Status        string     `json:"status"`
	Expiry        *time.Time `json:"expiry,omitempty"`
	LastPaymentAt *time.Time `json:"last_payment_at,omitempty"`
	SchoolID      *string    `json:"school_id,omitempty"`
	SchoolRole    *string    `json:"school_role,omitempty"`
}
