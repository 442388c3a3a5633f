package payments

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elimu_backend/internal/models"
)

func newTestDaraja(t *testing.T, handler http.Handler) (*DarajaClient, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	client := NewDarajaClient(DarajaConfig{
		BaseURL:        ts.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Shortcode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.test/webhooks/mpesa",
	})
	return client, ts
}

func serveToken(w http.ResponseWriter, token string) {
	_ = json.NewEncoder(w).Encode(map[string]string{
		"access_token": token,
		"expires_in":   "3599",
	})
}

func TestSTKPushDerivesPassword(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 14, 30, 5, 0, time.UTC)

	var captured map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		serveToken(w, "tok")
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(STKPushResponse{
			MerchantRequestID: "mr-1",
			CheckoutRequestID: "ws_CO_1",
			ResponseCode:      "0",
			CustomerMessage:   "Success. Request accepted for processing",
		})
	})

	client, _ := newTestDaraja(t, mux)
	client.now = func() time.Time { return fixed }

	resp, err := client.STKPush(context.Background(), STKPushRequest{
		PhoneNumber:      "254712345678",
		Amount:           1500,
		AccountReference: "ELIMU-pro",
		Description:      "subscription",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_1", resp.CheckoutRequestID)

	wantPassword := base64.StdEncoding.EncodeToString([]byte("174379" + "passkey" + "20260301143005"))
	assert.Equal(t, wantPassword, captured["Password"])
	assert.Equal(t, "20260301143005", captured["Timestamp"])
	assert.Equal(t, "CustomerPayBillOnline", captured["TransactionType"])
	assert.Equal(t, "254712345678", captured["PhoneNumber"])
}

func TestSTKPushRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		serveToken(w, "tok")
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(STKPushResponse{
			ResponseCode:        "1",
			ResponseDescription: "Invalid Amount",
		})
	})

	client, _ := newTestDaraja(t, mux)

	_, err := client.STKPush(context.Background(), STKPushRequest{PhoneNumber: "254712345678", Amount: 0})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorKindRejected, perr.Kind)
	assert.Equal(t, "Invalid Amount", perr.Description)
}

func TestPostAuthorizedRefreshesRejectedToken(t *testing.T) {
	tokens := 0
	pushes := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		tokens++
		if tokens == 1 {
			serveToken(w, "stale")
			return
		}
		serveToken(w, "fresh")
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		pushes++
		if r.Header.Get("Authorization") == "Bearer stale" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(STKPushResponse{ResponseCode: "0", CheckoutRequestID: "ws_CO_2"})
	})

	client, _ := newTestDaraja(t, mux)

	resp, err := client.STKPush(context.Background(), STKPushRequest{PhoneNumber: "254712345678", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_2", resp.CheckoutRequestID)
	assert.Equal(t, 2, tokens)
	assert.Equal(t, 2, pushes)
}

func TestQueryStatusStillProcessing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		serveToken(w, "tok")
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"errorCode":    "500.001.1001",
			"errorMessage": "The transaction is being processed",
		})
	})

	client, _ := newTestDaraja(t, mux)

	result, err := client.QueryStatus(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.True(t, result.Pending)
}

func TestQueryStatusTerminal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		serveToken(w, "tok")
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"ResponseCode": "0",
			"ResultCode":   "1032",
			"ResultDesc":   "Request cancelled by user",
		})
	})

	client, _ := newTestDaraja(t, mux)

	result, err := client.QueryStatus(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.False(t, result.Pending)
	assert.Equal(t, "1032", result.ResultCode)
}

func TestMapResultCode(t *testing.T) {
	assert.Equal(t, models.TransactionCompleted, MapResultCode("0"))
	assert.Equal(t, models.TransactionCancelled, MapResultCode("1032"))
	assert.Equal(t, models.TransactionFailed, MapResultCode("2001"))
	assert.Equal(t, models.TransactionFailed, MapResultCode("1037"))
}
