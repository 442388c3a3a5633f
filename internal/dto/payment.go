package dto

import "time"

// InitiateSTKPushRequest starts a mobile-money charge for a subscription tier.
type InitiateSTKPushRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,msisdn"`
	Amount      int64  `json:"amount" validate:"required"`
	Tier        string `json:"tier" validate:"required,oneof=pro school"`
	Period      string `json:"period" validate:"required,oneof=monthly annual"`
}

type InitiateSTKPushResponse struct {
	TransactionID     string `json:"transaction_id"`
	CheckoutRequestID string `json:"checkout_request_id"`
	CustomerMessage   string `json:"customer_message"`
}

// InitializePaystackRequest creates a hosted-checkout payment link.
type InitializePaystackRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Amount int64  `json:"amount" validate:"required"`
	Tier   string `json:"tier" validate:"required,oneof=pro school"`
	Period string `json:"period" validate:"required,oneof=monthly annual"`
}

type InitializePaystackResponse struct {
	TransactionID    string `json:"transaction_id"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
}

type TransactionStatusResponse struct {
	TransactionID string     `json:"transaction_id"`
	Status        string     `json:"status"`
	Detail        string     `json:"detail,omitempty"`
	ReceiptNumber string     `json:"receipt_number,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}
