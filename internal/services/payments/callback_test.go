package payments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 1500.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "TransactionDate", "Value": 20260301143005},
          {"Name": "PhoneNumber", "Value": 254712345678}
        ]
      }
    }
  }
}`

const cancelledCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-2",
      "CheckoutRequestID": "ws_CO_2",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user"
    }
  }
}`

func TestParseMpesaCallbackSuccess(t *testing.T) {
	cb, err := ParseMpesaCallback([]byte(successCallback))
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_191220191020363925", cb.CheckoutRequestID)
	assert.Equal(t, "0", cb.ResultCode)
	assert.Equal(t, int64(1500), cb.Amount)
	assert.Equal(t, "NLJ7RT61SV", cb.ReceiptNumber)
	assert.Equal(t, "254712345678", cb.PhoneNumber)

	require.NotNil(t, cb.PaidAt)
	want := time.Date(2026, 3, 1, 14, 30, 5, 0, time.Local)
	assert.True(t, cb.PaidAt.Equal(want))
}

func TestParseMpesaCallbackCancelled(t *testing.T) {
	cb, err := ParseMpesaCallback([]byte(cancelledCallback))
	require.NoError(t, err)

	assert.Equal(t, "1032", cb.ResultCode)
	assert.Empty(t, cb.ReceiptNumber)
	assert.Nil(t, cb.PaidAt)
}

func TestParseMpesaCallbackRejectsJunk(t *testing.T) {
	_, err := ParseMpesaCallback([]byte("not json"))
	assert.Error(t, err)

	// Valid JSON but no correlation id is unusable.
	_, err = ParseMpesaCallback([]byte(`{"Body":{"stkCallback":{"ResultCode":0}}}`))
	assert.Error(t, err)
}
