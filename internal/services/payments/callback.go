package payments

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// MpesaCallback is the flattened content of the provider's asynchronous
// push: correlation ids, the outcome code and, on success, the named
// metadata items.
type MpesaCallback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        string
	ResultDesc        string

	Amount        int64
	ReceiptNumber string
	PhoneNumber   string
	PaidAt        *time.Time
}

// MpesaAck is the fixed two-field acknowledgment the provider expects on
// every delivery, regardless of internal outcome.
type MpesaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

type mpesaCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseMpesaCallback decodes the nested provider envelope.
func ParseMpesaCallback(raw []byte) (*MpesaCallback, error) {
	var env mpesaCallbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("payments: malformed callback payload: %w", err)
	}

	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("payments: callback missing CheckoutRequestID")
	}

	out := &MpesaCallback{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        strconv.Itoa(cb.ResultCode),
		ResultDesc:        cb.ResultDesc,
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if v, ok := item.Value.(float64); ok {
				out.Amount = int64(v)
			}
		case "MpesaReceiptNumber":
			if v, ok := item.Value.(string); ok {
				out.ReceiptNumber = v
			}
		case "PhoneNumber":
			switch v := item.Value.(type) {
			case float64:
				out.PhoneNumber = strconv.FormatInt(int64(v), 10)
			case string:
				out.PhoneNumber = v
			}
		case "TransactionDate":
			if v, ok := item.Value.(float64); ok {
				if t, err := time.ParseInLocation("20060102150405", strconv.FormatInt(int64(v), 10), time.Local); err == nil {
					out.PaidAt = &t
				}
			}
		}
	}

	return out, nil
}
